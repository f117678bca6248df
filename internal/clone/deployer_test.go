package clone

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type fakeSubstrate struct {
	deployed map[common.Address][]byte
	shift    bool
}

func (s *fakeSubstrate) Create2(_ context.Context, deployer common.Address, salt common.Hash, code []byte, init []byte) (common.Address, error) {
	addr := crypto.CreateAddress2(deployer, salt, crypto.Keccak256(code))
	if s.shift {
		addr[0] ^= 0xff
	}
	if _, ok := s.deployed[addr]; ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrDeploymentCollision, addr.Hex())
	}
	s.deployed[addr] = init
	return addr, nil
}

func TestDeployAndInitMatchesPrediction(t *testing.T) {
	sub := &fakeSubstrate{deployed: map[common.Address][]byte{}}
	d := NewDeployer(sub, common.HexToAddress("0xfac7"))
	template := common.HexToAddress("0x7e30")

	for i := byte(1); i <= 5; i++ {
		salt := common.BytesToHash([]byte{i})
		addr, err := d.DeployAndInit(context.Background(), template, []byte{0xca, 0xfe}, salt)
		require.NoError(t, err, "deploy %d", i)
		require.Equal(t, d.PredictAddress(template, salt), addr, "deploy %d", i)
		require.Equal(t, []byte{0xca, 0xfe}, sub.deployed[addr], "init payload passed through")
	}
}

func TestDeployAndInitCollision(t *testing.T) {
	sub := &fakeSubstrate{deployed: map[common.Address][]byte{}}
	d := NewDeployer(sub, common.HexToAddress("0xfac7"))
	template := common.HexToAddress("0x7e30")
	salt := common.BytesToHash([]byte{9})

	_, err := d.DeployAndInit(context.Background(), template, []byte{1}, salt)
	require.NoError(t, err)
	_, err = d.DeployAndInit(context.Background(), template, []byte{1}, salt)
	require.ErrorIs(t, err, ErrDeploymentCollision)
	require.Len(t, sub.deployed, 1, "one live contract")
}

func TestDeployAndInitRequiresPayload(t *testing.T) {
	d := NewDeployer(&fakeSubstrate{deployed: map[common.Address][]byte{}}, common.HexToAddress("0xfac7"))
	_, err := d.DeployAndInit(context.Background(), common.HexToAddress("0x7e30"), nil, common.Hash{})
	require.Error(t, err)
}

func TestDeployAndInitDetectsAddressDrift(t *testing.T) {
	d := NewDeployer(&fakeSubstrate{deployed: map[common.Address][]byte{}, shift: true}, common.HexToAddress("0xfac7"))
	_, err := d.DeployAndInit(context.Background(), common.HexToAddress("0x7e30"), []byte{1}, common.Hash{})
	require.Error(t, err)
}

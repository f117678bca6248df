package chain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLogQuery(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	topic := common.HexToHash("0x01")

	q := logQuery(10, 20, []common.Address{addr}, []common.Hash{topic})
	require.Equal(t, uint64(10), q.FromBlock.Uint64())
	require.Equal(t, uint64(20), q.ToBlock.Uint64())
	require.Equal(t, []common.Address{addr}, q.Addresses)
	require.Equal(t, [][]common.Hash{{topic}}, q.Topics)

	q = logQuery(1, 1, nil, nil)
	require.Nil(t, q.Topics)
	require.Empty(t, q.Addresses)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	require.Error(t, err)
}

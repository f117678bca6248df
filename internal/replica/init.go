package replica

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// InitParams is the payload of the replica's initialize call.
type InitParams struct {
	Owner                common.Address
	Token                common.Address
	Agents               []common.Address
	Relay                common.Address
	Primary              common.Address
	DefaultMemberFunding *big.Int
}

// EncodeInit packs an initialize call.
func EncodeInit(p InitParams) ([]byte, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	funding := p.DefaultMemberFunding
	if funding == nil {
		funding = new(big.Int)
	}
	agents := p.Agents
	if agents == nil {
		agents = []common.Address{}
	}
	data, err := parsed.Pack("initialize", p.Owner, p.Token, agents, p.Relay, p.Primary, funding)
	if err != nil {
		return nil, fmt.Errorf("pack initialize: %w", err)
	}
	return data, nil
}

// DecodeInit unpacks an initialize call produced by EncodeInit.
func DecodeInit(input []byte) (InitParams, error) {
	parsed, err := ABI()
	if err != nil {
		return InitParams{}, err
	}
	if len(input) < 4 {
		return InitParams{}, fmt.Errorf("input too short")
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return InitParams{}, err
	}
	if method.Name != "initialize" {
		return InitParams{}, fmt.Errorf("unexpected method %s", method.Name)
	}

	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return InitParams{}, fmt.Errorf("unpack initialize: %w", err)
	}
	if len(values) != 6 {
		return InitParams{}, fmt.Errorf("unexpected initialize values: %d", len(values))
	}

	var p InitParams
	var ok bool
	if p.Owner, ok = values[0].(common.Address); !ok {
		return InitParams{}, fmt.Errorf("owner: unexpected type %T", values[0])
	}
	if p.Token, ok = values[1].(common.Address); !ok {
		return InitParams{}, fmt.Errorf("token: unexpected type %T", values[1])
	}
	if p.Agents, ok = values[2].([]common.Address); !ok {
		return InitParams{}, fmt.Errorf("agents: unexpected type %T", values[2])
	}
	if p.Relay, ok = values[3].(common.Address); !ok {
		return InitParams{}, fmt.Errorf("relay: unexpected type %T", values[3])
	}
	if p.Primary, ok = values[4].(common.Address); !ok {
		return InitParams{}, fmt.Errorf("primary: unexpected type %T", values[4])
	}
	if p.DefaultMemberFunding, ok = values[5].(*big.Int); !ok {
		return InitParams{}, fmt.Errorf("default member funding: unexpected type %T", values[5])
	}
	return p, nil
}

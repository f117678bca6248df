// Package replica implements the logic behind per-union replica proxies on the secondary ledger.
package replica

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"dataunion/internal/sidechain"
)

var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
)

// Logic is the template logic registered with the substrate.
type Logic struct{}

func (Logic) NewInstance() sidechain.Contract {
	return &Replica{}
}

// Replica is the state of one deployed proxy.
type Replica struct {
	initialized bool
	params      InitParams
}

// Call dispatches an ABI-encoded call.
func (r *Replica) Call(ctx context.Context, self, caller common.Address, input []byte) ([]byte, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	if len(input) < 4 {
		return nil, fmt.Errorf("input too short")
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "initialize":
		if r.initialized {
			return nil, ErrAlreadyInitialized
		}
		params, err := DecodeInit(input)
		if err != nil {
			return nil, err
		}
		if params.Owner == (common.Address{}) {
			return nil, fmt.Errorf("owner is required")
		}
		r.params = params
		r.initialized = true
		return nil, nil
	case "isInitialized":
		return method.Outputs.Pack(r.initialized)
	}

	if !r.initialized {
		return nil, ErrNotInitialized
	}
	switch method.Name {
	case "owner":
		return method.Outputs.Pack(r.params.Owner)
	case "mainnetDataUnion":
		return method.Outputs.Pack(r.params.Primary)
	case "newMemberEth":
		return method.Outputs.Pack(r.params.DefaultMemberFunding)
	default:
		return nil, fmt.Errorf("unsupported method %s", method.Name)
	}
}

// Caller executes contract calls.
type Caller interface {
	Call(ctx context.Context, caller, to common.Address, input []byte) ([]byte, error)
}

// Owner reads the owner of the replica at addr.
func Owner(ctx context.Context, c Caller, addr common.Address) (common.Address, error) {
	return readAddress(ctx, c, addr, "owner")
}

// Primary reads the primary-ledger union address the replica was initialized for.
func Primary(ctx context.Context, c Caller, addr common.Address) (common.Address, error) {
	return readAddress(ctx, c, addr, "mainnetDataUnion")
}

// IsInitialized reports whether the replica at addr has been initialized.
func IsInitialized(ctx context.Context, c Caller, addr common.Address) (bool, error) {
	values, err := call(ctx, c, addr, "isInitialized")
	if err != nil {
		return false, err
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, fmt.Errorf("isInitialized unexpected type %T", values[0])
	}
	return ok, nil
}

func readAddress(ctx context.Context, c Caller, addr common.Address, method string) (common.Address, error) {
	values, err := call(ctx, c, addr, method)
	if err != nil {
		return common.Address{}, err
	}
	out, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	return out, nil
}

func call(ctx context.Context, c Caller, addr common.Address, method string) ([]interface{}, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := c.Call(ctx, common.Address{}, addr, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	return values, nil
}

// Package relay authenticates calls delivered by the cross-ledger message bridge.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorizedCaller rejects any request that did not arrive through the relay.
var ErrUnauthorizedCaller = errors.New("unauthorized caller")

// Bridge reports the logical sender of the relayed call currently executing.
type Bridge interface {
	MessageSender(ctx context.Context) (common.Address, error)
}

// Authenticator gates calls on the relay contract's identity.
type Authenticator struct {
	bridge  Bridge
	address common.Address
}

func NewAuthenticator(bridge Bridge, address common.Address) *Authenticator {
	return &Authenticator{bridge: bridge, address: address}
}

// Address returns the relay contract address.
func (a *Authenticator) Address() common.Address {
	return a.address
}

// Authenticate returns the logical sender when caller is the relay contract.
func (a *Authenticator) Authenticate(ctx context.Context, caller common.Address) (common.Address, error) {
	if caller != a.address {
		return common.Address{}, fmt.Errorf("%w: %s is not the relay %s", ErrUnauthorizedCaller, caller.Hex(), a.address.Hex())
	}
	if a.bridge == nil {
		return common.Address{}, fmt.Errorf("bridge is nil")
	}
	sender, err := a.bridge.MessageSender(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("message sender: %w", err)
	}
	if sender == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no relayed message in progress", ErrUnauthorizedCaller)
	}
	return sender, nil
}

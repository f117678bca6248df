package relay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type senderKey struct{}

// LocalBridge delivers messages in-process. The logical sender travels in the context of the
// delivered call, so concurrent deliveries never observe each other's sender.
type LocalBridge struct {
	address common.Address
}

func NewLocalBridge(address common.Address) *LocalBridge {
	return &LocalBridge{address: address}
}

// Address is the caller identity of delivered calls.
func (b *LocalBridge) Address() common.Address {
	return b.address
}

// Deliver runs fn as a relayed call from sender.
func (b *LocalBridge) Deliver(ctx context.Context, sender common.Address, fn func(ctx context.Context, caller common.Address) error) error {
	return fn(context.WithValue(ctx, senderKey{}, sender), b.address)
}

// MessageSender implements Bridge.
func (b *LocalBridge) MessageSender(ctx context.Context) (common.Address, error) {
	sender, _ := ctx.Value(senderKey{}).(common.Address)
	return sender, nil
}

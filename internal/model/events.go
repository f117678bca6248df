package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// EventType names a variant of Event.
type EventType string

const (
	EventUnionCreated         EventType = "UnionCreated"
	EventMemberJoined         EventType = "MemberJoined"
	EventMemberParted         EventType = "MemberParted"
	EventMemberWeightChanged  EventType = "MemberWeightChanged"
	EventRevenueReceived      EventType = "RevenueReceived"
	EventOwnershipTransferred EventType = "OwnershipTransferred"
)

// Event is the closed set of domain events consumed by the ledger.
// Only the types in this file implement it.
type Event interface {
	Meta() EventMeta
	Type() EventType
	sealed()
}

// EventMeta is shared by every event.
type EventMeta struct {
	Key       EventKey       `json:"key"`
	Union     common.Address `json:"union"`
	Timestamp uint64         `json:"timestamp"`
	TxHash    common.Hash    `json:"tx_hash"`
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) sealed()           {}

// UnionCreated is emitted by the factory when a replica is deployed.
type UnionCreated struct {
	EventMeta
	Primary  common.Address `json:"primary"`
	Owner    common.Address `json:"owner"`
	Template common.Address `json:"template"`
}

type MemberJoined struct {
	EventMeta
	Member common.Address `json:"member"`
}

type MemberParted struct {
	EventMeta
	Member         common.Address `json:"member"`
	LeaveCondition uint8          `json:"leave_condition"`
}

type MemberWeightChanged struct {
	EventMeta
	Member    common.Address  `json:"member"`
	OldWeight decimal.Decimal `json:"old_weight"`
	NewWeight decimal.Decimal `json:"new_weight"`
}

type RevenueReceived struct {
	EventMeta
	AmountWei *big.Int `json:"amount_wei"`
}

type OwnershipTransferred struct {
	EventMeta
	PreviousOwner common.Address `json:"previous_owner"`
	NewOwner      common.Address `json:"new_owner"`
}

func (UnionCreated) Type() EventType         { return EventUnionCreated }
func (MemberJoined) Type() EventType         { return EventMemberJoined }
func (MemberParted) Type() EventType         { return EventMemberParted }
func (MemberWeightChanged) Type() EventType  { return EventMemberWeightChanged }
func (RevenueReceived) Type() EventType      { return EventRevenueReceived }
func (OwnershipTransferred) Type() EventType { return EventOwnershipTransferred }

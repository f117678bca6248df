package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Union is the live aggregate state of one data union.
type Union struct {
	Address      common.Address  `json:"address"`
	Owner        common.Address  `json:"owner"`
	Primary      common.Address  `json:"primary"`
	MemberCount  uint64          `json:"member_count"`
	TotalWeight  decimal.Decimal `json:"total_weight"`
	RevenueWei   *big.Int        `json:"revenue_wei"`
	CreatedAt    uint64          `json:"created_at"`
	LastEventKey EventKey        `json:"last_event_key"`
}

// Clone returns a deep copy of u.
func (u Union) Clone() Union {
	out := u
	out.RevenueWei = cloneBig(u.RevenueWei)
	return out
}

// MemberStatus is the membership state of a member in a union.
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "ACTIVE"
	MemberStatusInactive MemberStatus = "INACTIVE"
)

// Member tracks one address's membership in one union.
type Member struct {
	Address  common.Address  `json:"address"`
	Union    common.Address  `json:"union"`
	Status   MemberStatus    `json:"status"`
	Weight   decimal.Decimal `json:"weight"`
	JoinDate uint64          `json:"join_date"`
}

// MemberID identifies a member record.
type MemberID struct {
	Union  common.Address
	Member common.Address
}

// ID returns the member's key.
func (m Member) ID() MemberID {
	return MemberID{Union: m.Union, Member: m.Address}
}

// RevenueEvent is one revenue arrival, stored append-only.
type RevenueEvent struct {
	Union     common.Address `json:"union"`
	Key       EventKey       `json:"key"`
	AmountWei *big.Int       `json:"amount_wei"`
	Date      uint64         `json:"date"`
}

// EventID identifies one applied event of a union.
type EventID struct {
	Union common.Address
	Key   EventKey
}

// RevenueEventID identifies a revenue event record.
type RevenueEventID = EventID

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

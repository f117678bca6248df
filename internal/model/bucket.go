package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Granularity is the length class of a statistics bucket.
type Granularity string

const (
	GranularityHour Granularity = "HOUR"
	GranularityDay  Granularity = "DAY"
)

// Granularities lists every bucket length maintained per union.
var Granularities = []Granularity{GranularityHour, GranularityDay}

// Seconds returns the bucket length. Unknown granularities are a programming error.
func (g Granularity) Seconds() uint64 {
	switch g {
	case GranularityHour:
		return 3600
	case GranularityDay:
		return 86400
	default:
		panic(fmt.Sprintf("unknown bucket granularity %q", string(g)))
	}
}

// BucketStart returns the start of the bucket containing ts.
func (g Granularity) BucketStart(ts uint64) uint64 {
	length := g.Seconds()
	return ts - (ts % length)
}

// ParseGranularity validates external input.
func ParseGranularity(input string) (Granularity, error) {
	switch Granularity(input) {
	case GranularityHour, GranularityDay:
		return Granularity(input), nil
	default:
		return "", fmt.Errorf("unknown granularity: %s", input)
	}
}

// BucketID identifies a statistics bucket.
type BucketID struct {
	Union       common.Address
	Granularity Granularity
	StartDate   uint64
}

// StatsBucket holds the aggregate at the start of a time window plus the changes within it.
// The AtStart fields never change after creation.
type StatsBucket struct {
	Union       common.Address `json:"union"`
	Granularity Granularity    `json:"granularity"`
	StartDate   uint64         `json:"start_date"`
	EndDate     uint64         `json:"end_date"`

	MemberCountAtStart uint64          `json:"member_count_at_start"`
	RevenueAtStartWei  *big.Int        `json:"revenue_at_start_wei"`
	TotalWeightAtStart decimal.Decimal `json:"total_weight_at_start"`

	MemberCountChange int64           `json:"member_count_change"`
	RevenueChangeWei  *big.Int        `json:"revenue_change_wei"`
	TotalWeightChange decimal.Decimal `json:"total_weight_change"`
}

// ID returns the bucket's key.
func (b StatsBucket) ID() BucketID {
	return BucketID{Union: b.Union, Granularity: b.Granularity, StartDate: b.StartDate}
}

// Clone returns a deep copy of b.
func (b StatsBucket) Clone() StatsBucket {
	out := b
	out.RevenueAtStartWei = cloneBig(b.RevenueAtStartWei)
	out.RevenueChangeWei = cloneBig(b.RevenueChangeWei)
	return out
}

package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"dataunion/internal/model"
)

// Delta is the change one event makes to a union's aggregate.
type Delta struct {
	Members    int64
	RevenueWei *big.Int
	Weight     decimal.Decimal
}

func (d Delta) revenue() *big.Int {
	if d.RevenueWei == nil {
		return new(big.Int)
	}
	return d.RevenueWei
}

// ApplyTo returns u with d added. It fails when a total would become negative.
func (d Delta) ApplyTo(u model.Union) (model.Union, error) {
	out := u.Clone()

	count := int64(out.MemberCount) + d.Members
	if count < 0 {
		return model.Union{}, fmt.Errorf("%w: member count of %s would drop below zero", ErrInvalidTransition, u.Address.Hex())
	}
	weight := out.TotalWeight.Add(d.Weight)
	if weight.IsNegative() {
		return model.Union{}, fmt.Errorf("%w: total weight of %s would drop below zero", ErrInvalidTransition, u.Address.Hex())
	}

	out.MemberCount = uint64(count)
	out.TotalWeight = weight
	out.RevenueWei.Add(out.RevenueWei, d.revenue())
	return out, nil
}

// NewBucket opens the bucket of granularity g containing ts, snapshotting u as its starting state.
func NewBucket(u model.Union, g model.Granularity, ts uint64) model.StatsBucket {
	start := g.BucketStart(ts)
	return model.StatsBucket{
		Union:              u.Address,
		Granularity:        g,
		StartDate:          start,
		EndDate:            start + g.Seconds(),
		MemberCountAtStart: u.MemberCount,
		RevenueAtStartWei:  new(big.Int).Set(u.RevenueWei),
		TotalWeightAtStart: u.TotalWeight,
		RevenueChangeWei:   new(big.Int),
		TotalWeightChange:  decimal.Zero,
	}
}

// Accumulate adds d to the change fields of b.
func (d Delta) Accumulate(b model.StatsBucket) model.StatsBucket {
	out := b.Clone()
	out.MemberCountChange += d.Members
	out.RevenueChangeWei.Add(out.RevenueChangeWei, d.revenue())
	out.TotalWeightChange = out.TotalWeightChange.Add(d.Weight)
	return out
}

// applyDelta records d in every bucket containing ts and then in the aggregate.
// u must be the aggregate as it was before the event, which is what new buckets snapshot.
func applyDelta(ctx context.Context, tx Tx, u model.Union, ts uint64, d Delta) (model.Union, error) {
	next, err := d.ApplyTo(u)
	if err != nil {
		return model.Union{}, err
	}

	for _, g := range model.Granularities {
		id := model.BucketID{Union: u.Address, Granularity: g, StartDate: g.BucketStart(ts)}
		bucket, ok, err := tx.Bucket(ctx, id)
		if err != nil {
			return model.Union{}, fmt.Errorf("load %s bucket: %w", g, err)
		}
		if !ok {
			bucket = NewBucket(u, g, ts)
		}
		if err := tx.PutBucket(ctx, d.Accumulate(bucket)); err != nil {
			return model.Union{}, fmt.Errorf("store %s bucket: %w", g, err)
		}
	}

	if err := tx.PutUnion(ctx, next); err != nil {
		return model.Union{}, fmt.Errorf("store union: %w", err)
	}
	return next, nil
}

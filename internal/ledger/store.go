package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"dataunion/internal/model"
)

// Tx reads and writes ledger records inside one transaction. Lookups report absence with ok=false.
type Tx interface {
	Union(ctx context.Context, addr common.Address) (model.Union, bool, error)
	PutUnion(ctx context.Context, u model.Union) error
	Member(ctx context.Context, id model.MemberID) (model.Member, bool, error)
	PutMember(ctx context.Context, m model.Member) error
	Bucket(ctx context.Context, id model.BucketID) (model.StatsBucket, bool, error)
	PutBucket(ctx context.Context, b model.StatsBucket) error
	HasRevenueEvent(ctx context.Context, id model.RevenueEventID) (bool, error)
	AppendRevenueEvent(ctx context.Context, ev model.RevenueEvent) error
	HasAppliedEvent(ctx context.Context, id model.EventID) (bool, error)
	MarkApplied(ctx context.Context, id model.EventID, eventType model.EventType) error
}

// Reader serves committed state.
type Reader interface {
	Union(ctx context.Context, addr common.Address) (model.Union, bool, error)
	Unions(ctx context.Context) ([]model.Union, error)
	Member(ctx context.Context, id model.MemberID) (model.Member, bool, error)
	Members(ctx context.Context, union common.Address) ([]model.Member, error)
	Buckets(ctx context.Context, union common.Address, g model.Granularity, from, to uint64) ([]model.StatsBucket, error)
	RevenueEvents(ctx context.Context, union common.Address) ([]model.RevenueEvent, error)
}

// Store persists ledger state. Update runs fn in a transaction that commits only when fn returns nil,
// so readers never see a partially applied event.
type Store interface {
	Reader
	Update(ctx context.Context, fn func(tx Tx) error) error
}

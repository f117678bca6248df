// Package ledger maintains union aggregates, members, revenue history and time-bucketed statistics
// from the ordered stream of union events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dataunion/internal/model"
)

// Integrity errors. An event failing with one of these is rejected and ingestion moves on.
var (
	ErrMissingAggregate  = errors.New("missing union aggregate")
	ErrMissingMember     = errors.New("missing member")
	ErrInvalidTransition = errors.New("invalid member transition")
	ErrOutOfOrder        = errors.New("event older than last applied event")
)

// IsIntegrityError reports whether err marks a malformed event rather than a failed store.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrMissingAggregate) ||
		errors.Is(err, ErrMissingMember) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOutOfOrder)
}

// Result is the outcome of applying one event.
type Result int

const (
	ResultApplied Result = iota
	ResultDuplicate
	ResultRejected
)

func (r Result) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultDuplicate:
		return "duplicate"
	case ResultRejected:
		return "rejected"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Observer records ledger outcomes.
type Observer interface {
	ObserveEvent(eventType, result string, started time.Time)
	ObserveIntegrityError(eventType, reason string)
}

// Publisher receives the committed aggregate after each applied event.
type Publisher interface {
	PublishUnion(ctx context.Context, u model.Union) error
}

// RejectHandler receives events rejected as integrity errors.
type RejectHandler func(ev model.Event, err error)

type nopObserver struct{}

func (nopObserver) ObserveEvent(string, string, time.Time) {}
func (nopObserver) ObserveIntegrityError(string, string)   {}

// Options configure a Ledger.
type Options struct {
	Logger    *zap.Logger
	Metrics   Observer
	Publisher Publisher
	OnReject  RejectHandler
	Workers   int
}

// Ledger applies events to a Store. Events of one union are applied one at a time;
// different unions proceed independently.
type Ledger struct {
	store     Store
	logger    *zap.Logger
	metrics   Observer
	publisher Publisher
	onReject  RejectHandler
	workers   int

	locksMu sync.Mutex
	locks   map[common.Address]*sync.Mutex
}

func New(store Store, opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopObserver{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Ledger{
		store:     store,
		logger:    logger.Named("ledger"),
		metrics:   metrics,
		publisher: opts.Publisher,
		onReject:  opts.OnReject,
		workers:   workers,
		locks:     make(map[common.Address]*sync.Mutex),
	}
}

// Store returns the underlying store.
func (l *Ledger) Store() Store {
	return l.store
}

// Apply applies one event in its own transaction.
// Integrity errors are logged and reported as ResultRejected with a nil error.
func (l *Ledger) Apply(ctx context.Context, ev model.Event) (Result, error) {
	started := time.Now()
	meta := ev.Meta()

	lock := l.unionLock(meta.Union)
	lock.Lock()
	defer lock.Unlock()

	result := ResultApplied
	var committed model.Union
	err := l.store.Update(ctx, func(tx Tx) error {
		var err error
		result, committed, err = apply(ctx, tx, ev)
		return err
	})
	if err != nil {
		if !IsIntegrityError(err) {
			return 0, fmt.Errorf("apply %s %s: %w", ev.Type(), meta.Key, err)
		}
		l.reject(ev, err)
		l.metrics.ObserveEvent(string(ev.Type()), ResultRejected.String(), started)
		return ResultRejected, nil
	}

	l.metrics.ObserveEvent(string(ev.Type()), result.String(), started)
	if result == ResultDuplicate {
		l.logger.Debug("event already applied",
			zap.String("type", string(ev.Type())),
			zap.String("union", meta.Union.Hex()),
			zap.String("key", meta.Key.String()),
		)
		return result, nil
	}

	if l.publisher != nil {
		if err := l.publisher.PublishUnion(ctx, committed); err != nil {
			l.logger.Warn("publish union failed", zap.String("union", meta.Union.Hex()), zap.Error(err))
		}
	}
	return result, nil
}

func (l *Ledger) reject(ev model.Event, err error) {
	meta := ev.Meta()
	fields := []zap.Field{
		zap.String("type", string(ev.Type())),
		zap.String("union", meta.Union.Hex()),
		zap.String("key", meta.Key.String()),
		zap.Error(err),
	}
	if member, ok := memberOf(ev); ok {
		fields = append(fields, zap.String("member", member.Hex()))
	}
	l.logger.Error("data integrity error, event skipped", fields...)
	l.metrics.ObserveIntegrityError(string(ev.Type()), integrityReason(err))
	if l.onReject != nil {
		l.onReject(ev, err)
	}
}

func (l *Ledger) unionLock(union common.Address) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	lock, ok := l.locks[union]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[union] = lock
	}
	return lock
}

// apply runs inside a transaction and returns the aggregate it leaves behind.
func apply(ctx context.Context, tx Tx, ev model.Event) (Result, model.Union, error) {
	meta := ev.Meta()

	union, ok, err := tx.Union(ctx, meta.Union)
	if err != nil {
		return 0, model.Union{}, fmt.Errorf("load union: %w", err)
	}

	if created, isCreate := ev.(model.UnionCreated); isCreate {
		if ok {
			return ResultDuplicate, union, nil
		}
		union = model.Union{
			Address:      meta.Union,
			Owner:        created.Owner,
			Primary:      created.Primary,
			TotalWeight:  decimal.Zero,
			RevenueWei:   new(big.Int),
			CreatedAt:    meta.Timestamp,
			LastEventKey: meta.Key,
		}
		if err := tx.PutUnion(ctx, union); err != nil {
			return 0, model.Union{}, err
		}
		return ResultApplied, union, markApplied(ctx, tx, ev)
	}

	if !ok {
		return 0, model.Union{}, fmt.Errorf("%w: %s", ErrMissingAggregate, meta.Union.Hex())
	}
	duplicate, err := seen(ctx, tx, union, ev)
	if err != nil {
		return 0, model.Union{}, err
	}
	if duplicate {
		return ResultDuplicate, union, nil
	}
	if !union.LastEventKey.IsZero() && meta.Key.Less(union.LastEventKey) {
		return 0, model.Union{}, fmt.Errorf("%w: %s before %s", ErrOutOfOrder, meta.Key, union.LastEventKey)
	}
	union.LastEventKey = meta.Key
	if err := markApplied(ctx, tx, ev); err != nil {
		return 0, model.Union{}, err
	}

	var delta Delta
	switch e := ev.(type) {
	case model.MemberJoined:
		delta, err = applyJoin(ctx, tx, e)
	case model.MemberParted:
		delta, err = applyPart(ctx, tx, e)
	case model.MemberWeightChanged:
		delta, err = applyWeightChange(ctx, tx, e)
	case model.RevenueReceived:
		delta, err = applyRevenue(ctx, tx, e)
	case model.OwnershipTransferred:
		union.Owner = e.NewOwner
		return ResultApplied, union, tx.PutUnion(ctx, union)
	default:
		return 0, model.Union{}, fmt.Errorf("unsupported event type %T", ev)
	}
	if err != nil {
		return 0, model.Union{}, err
	}

	union, err = applyDelta(ctx, tx, union, meta.Timestamp, delta)
	if err != nil {
		return 0, model.Union{}, err
	}
	return ResultApplied, union, nil
}

func applyJoin(ctx context.Context, tx Tx, e model.MemberJoined) (Delta, error) {
	id := model.MemberID{Union: e.Union, Member: e.Member}
	member, ok, err := tx.Member(ctx, id)
	if err != nil {
		return Delta{}, fmt.Errorf("load member: %w", err)
	}
	if ok && member.Status == model.MemberStatusActive {
		return Delta{}, fmt.Errorf("%w: %s is already active in %s", ErrInvalidTransition, e.Member.Hex(), e.Union.Hex())
	}
	if !ok {
		member = model.Member{
			Address:  e.Member,
			Union:    e.Union,
			Weight:   decimal.NewFromInt(1),
			JoinDate: e.Timestamp,
		}
	}
	member.Status = model.MemberStatusActive
	if err := tx.PutMember(ctx, member); err != nil {
		return Delta{}, fmt.Errorf("store member: %w", err)
	}
	return Delta{Members: 1}, nil
}

func applyPart(ctx context.Context, tx Tx, e model.MemberParted) (Delta, error) {
	member, err := loadMember(ctx, tx, e.Union, e.Member)
	if err != nil {
		return Delta{}, err
	}
	if member.Status != model.MemberStatusActive {
		return Delta{}, fmt.Errorf("%w: %s is not active in %s", ErrInvalidTransition, e.Member.Hex(), e.Union.Hex())
	}
	member.Status = model.MemberStatusInactive
	if err := tx.PutMember(ctx, member); err != nil {
		return Delta{}, fmt.Errorf("store member: %w", err)
	}
	return Delta{Members: -1}, nil
}

func applyWeightChange(ctx context.Context, tx Tx, e model.MemberWeightChanged) (Delta, error) {
	member, err := loadMember(ctx, tx, e.Union, e.Member)
	if err != nil {
		return Delta{}, err
	}
	if e.NewWeight.IsNegative() {
		return Delta{}, fmt.Errorf("%w: negative weight for %s", ErrInvalidTransition, e.Member.Hex())
	}
	member.Weight = e.NewWeight
	if err := tx.PutMember(ctx, member); err != nil {
		return Delta{}, fmt.Errorf("store member: %w", err)
	}
	return Delta{Weight: e.NewWeight.Sub(e.OldWeight)}, nil
}

func applyRevenue(ctx context.Context, tx Tx, e model.RevenueReceived) (Delta, error) {
	amount := new(big.Int)
	if e.AmountWei != nil {
		amount.Set(e.AmountWei)
	}
	if amount.Sign() < 0 {
		return Delta{}, fmt.Errorf("%w: negative revenue at %s", ErrInvalidTransition, e.Key)
	}
	if err := tx.AppendRevenueEvent(ctx, model.RevenueEvent{
		Union:     e.Union,
		Key:       e.Key,
		AmountWei: amount,
		Date:      e.Timestamp,
	}); err != nil {
		return Delta{}, fmt.Errorf("append revenue event: %w", err)
	}
	return Delta{RevenueWei: amount}, nil
}

func loadMember(ctx context.Context, tx Tx, union, addr common.Address) (model.Member, error) {
	member, ok, err := tx.Member(ctx, model.MemberID{Union: union, Member: addr})
	if err != nil {
		return model.Member{}, fmt.Errorf("load member: %w", err)
	}
	if !ok {
		return model.Member{}, fmt.Errorf("%w: %s in %s", ErrMissingMember, addr.Hex(), union.Hex())
	}
	return member, nil
}

func memberOf(ev model.Event) (common.Address, bool) {
	switch e := ev.(type) {
	case model.MemberJoined:
		return e.Member, true
	case model.MemberParted:
		return e.Member, true
	case model.MemberWeightChanged:
		return e.Member, true
	default:
		return common.Address{}, false
	}
}

// seen reports whether ev was applied before. The last applied key and the
// revenue history also count, so unions stored before applied keys were
// recorded keep their replay protection.
func seen(ctx context.Context, tx Tx, union model.Union, ev model.Event) (bool, error) {
	meta := ev.Meta()
	id := model.EventID{Union: meta.Union, Key: meta.Key}
	ok, err := tx.HasAppliedEvent(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check applied event: %w", err)
	}
	if ok {
		return true, nil
	}
	if _, isRevenue := ev.(model.RevenueReceived); isRevenue {
		ok, err = tx.HasRevenueEvent(ctx, id)
		if err != nil {
			return false, fmt.Errorf("check revenue event: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return !union.LastEventKey.IsZero() && union.LastEventKey.Compare(meta.Key) == 0, nil
}

func markApplied(ctx context.Context, tx Tx, ev model.Event) error {
	meta := ev.Meta()
	if err := tx.MarkApplied(ctx, model.EventID{Union: meta.Union, Key: meta.Key}, ev.Type()); err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	return nil
}

func integrityReason(err error) string {
	switch {
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrMissingAggregate):
		return "missing_aggregate"
	case errors.Is(err, ErrMissingMember):
		return "missing_member"
	default:
		return "invalid_transition"
	}
}

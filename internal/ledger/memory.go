package ledger

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"dataunion/internal/model"
)

// MemoryStore is a Store held in maps.
type MemoryStore struct {
	mu      sync.RWMutex
	unions  map[common.Address]model.Union
	members map[model.MemberID]model.Member
	buckets map[model.BucketID]model.StatsBucket
	revenue map[model.RevenueEventID]model.RevenueEvent
	applied map[model.EventID]model.EventType
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		unions:  make(map[common.Address]model.Union),
		members: make(map[model.MemberID]model.Member),
		buckets: make(map[model.BucketID]model.StatsBucket),
		revenue: make(map[model.RevenueEventID]model.RevenueEvent),
		applied: make(map[model.EventID]model.EventType),
	}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		store:   s,
		unions:  make(map[common.Address]model.Union),
		members: make(map[model.MemberID]model.Member),
		buckets: make(map[model.BucketID]model.StatsBucket),
		revenue: make(map[model.RevenueEventID]model.RevenueEvent),
		applied: make(map[model.EventID]model.EventType),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range tx.unions {
		s.unions[k] = v
	}
	for k, v := range tx.members {
		s.members[k] = v
	}
	for k, v := range tx.buckets {
		s.buckets[k] = v
	}
	for k, v := range tx.revenue {
		s.revenue[k] = v
	}
	for k, v := range tx.applied {
		s.applied[k] = v
	}
	return nil
}

func (s *MemoryStore) Union(_ context.Context, addr common.Address) (model.Union, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.unions[addr]
	return u.Clone(), ok, nil
}

func (s *MemoryStore) Unions(_ context.Context) ([]model.Union, error) {
	s.mu.RLock()
	out := make([]model.Union, 0, len(s.unions))
	for _, u := range s.unions {
		out = append(out, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

func (s *MemoryStore) Member(_ context.Context, id model.MemberID) (model.Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	return m, ok, nil
}

func (s *MemoryStore) Members(_ context.Context, union common.Address) ([]model.Member, error) {
	s.mu.RLock()
	var out []model.Member
	for id, m := range s.members {
		if id.Union == union {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

func (s *MemoryStore) Buckets(_ context.Context, union common.Address, g model.Granularity, from, to uint64) ([]model.StatsBucket, error) {
	s.mu.RLock()
	var out []model.StatsBucket
	for id, b := range s.buckets {
		if id.Union == union && id.Granularity == g && id.StartDate >= from && id.StartDate < to {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartDate < out[j].StartDate })
	return out, nil
}

func (s *MemoryStore) RevenueEvents(_ context.Context, union common.Address) ([]model.RevenueEvent, error) {
	s.mu.RLock()
	var out []model.RevenueEvent
	for id, ev := range s.revenue {
		if id.Union == union {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// memoryTx buffers writes and reads through to committed state.
type memoryTx struct {
	store   *MemoryStore
	unions  map[common.Address]model.Union
	members map[model.MemberID]model.Member
	buckets map[model.BucketID]model.StatsBucket
	revenue map[model.RevenueEventID]model.RevenueEvent
	applied map[model.EventID]model.EventType
}

func (tx *memoryTx) Union(ctx context.Context, addr common.Address) (model.Union, bool, error) {
	if u, ok := tx.unions[addr]; ok {
		return u.Clone(), true, nil
	}
	return tx.store.Union(ctx, addr)
}

func (tx *memoryTx) PutUnion(_ context.Context, u model.Union) error {
	tx.unions[u.Address] = u.Clone()
	return nil
}

func (tx *memoryTx) Member(ctx context.Context, id model.MemberID) (model.Member, bool, error) {
	if m, ok := tx.members[id]; ok {
		return m, true, nil
	}
	return tx.store.Member(ctx, id)
}

func (tx *memoryTx) PutMember(_ context.Context, m model.Member) error {
	tx.members[m.ID()] = m
	return nil
}

func (tx *memoryTx) Bucket(_ context.Context, id model.BucketID) (model.StatsBucket, bool, error) {
	if b, ok := tx.buckets[id]; ok {
		return b.Clone(), true, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	b, ok := tx.store.buckets[id]
	return b.Clone(), ok, nil
}

func (tx *memoryTx) PutBucket(_ context.Context, b model.StatsBucket) error {
	tx.buckets[b.ID()] = b.Clone()
	return nil
}

func (tx *memoryTx) HasRevenueEvent(_ context.Context, id model.RevenueEventID) (bool, error) {
	if _, ok := tx.revenue[id]; ok {
		return true, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.revenue[id]
	return ok, nil
}

func (tx *memoryTx) AppendRevenueEvent(_ context.Context, ev model.RevenueEvent) error {
	tx.revenue[model.RevenueEventID{Union: ev.Union, Key: ev.Key}] = ev
	return nil
}

func (tx *memoryTx) HasAppliedEvent(_ context.Context, id model.EventID) (bool, error) {
	if _, ok := tx.applied[id]; ok {
		return true, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.applied[id]
	return ok, nil
}

func (tx *memoryTx) MarkApplied(_ context.Context, id model.EventID, eventType model.EventType) error {
	tx.applied[id] = eventType
	return nil
}

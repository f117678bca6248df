package ledger

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"dataunion/internal/model"
)

// BatchResult summarizes ApplyBatch.
type BatchResult struct {
	Applied    int
	Duplicates int
	Rejected   int
	// LastKey is the highest key in the batch. Every event up to it has been handled.
	LastKey model.EventKey
}

func (r *BatchResult) add(res Result) {
	switch res {
	case ResultApplied:
		r.Applied++
	case ResultDuplicate:
		r.Duplicates++
	case ResultRejected:
		r.Rejected++
	}
}

// Total is the number of events handled.
func (r BatchResult) Total() int {
	return r.Applied + r.Duplicates + r.Rejected
}

// SortEvents orders events by key, keeping the relative order of equal keys.
func SortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Meta().Key.Less(events[j].Meta().Key)
	})
}

// ApplyBatch applies events in key order. Events are partitioned by union; partitions run concurrently
// up to the configured worker count while each partition stays strictly sequential.
// The first store error cancels the remaining work.
func (l *Ledger) ApplyBatch(ctx context.Context, events []model.Event) (BatchResult, error) {
	var out BatchResult
	if len(events) == 0 {
		return out, nil
	}

	ordered := make([]model.Event, len(events))
	copy(ordered, events)
	SortEvents(ordered)
	out.LastKey = ordered[len(ordered)-1].Meta().Key

	var unions []common.Address
	partitions := make(map[common.Address][]model.Event)
	for _, ev := range ordered {
		union := ev.Meta().Union
		if _, ok := partitions[union]; !ok {
			unions = append(unions, union)
		}
		partitions[union] = append(partitions[union], ev)
	}

	results := make([]BatchResult, len(unions))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(l.workers)
	for i, union := range unions {
		i, partition := i, partitions[union]
		group.Go(func() error {
			for _, ev := range partition {
				res, err := l.Apply(groupCtx, ev)
				if err != nil {
					return err
				}
				results[i].add(res)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return BatchResult{}, err
	}

	for _, r := range results {
		out.Applied += r.Applied
		out.Duplicates += r.Duplicates
		out.Rejected += r.Rejected
	}
	return out, nil
}

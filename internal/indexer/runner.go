// Package indexer pulls union and factory logs from the chain and feeds them to the ledger in key order.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"dataunion/internal/decode"
	"dataunion/internal/ledger"
	"dataunion/internal/model"
	"dataunion/internal/replica"
	"dataunion/internal/storage"
)

// addressChunk bounds the number of emitters per eth_getLogs request.
const addressChunk = 500

// LogSource is the chain access the runner needs.
type LogSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// TopicDecoder is a decoder that can list the topics it accepts.
type TopicDecoder interface {
	decode.Decoder
	Topics() []common.Hash
}

// EventPublisher forwards applied events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, events []model.Event) error
}

// Observer records batch progress.
type Observer interface {
	ObserveBatch(err error, logs int, started time.Time)
	SetCheckpoint(block uint64)
}

type nopObserver struct{}

func (nopObserver) ObserveBatch(error, int, time.Time) {}
func (nopObserver) SetCheckpoint(uint64)               {}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Factory      common.Address
	Unions       []common.Address
	BatchSize    uint64
	Follow       bool
	PollInterval time.Duration
	RPS          int
	MaxRetries   int
	RetryBackoff time.Duration
	// Confirmations keeps the runner this many blocks behind the head when the end block follows the chain.
	Confirmations uint64
}

// Deps are the collaborators of a Runner. Archive, Errors, Publisher, Metrics and Logger are optional.
// Contracts is needed only when RunConfig.Unions names unions the ledger does not hold yet.
type Deps struct {
	Source         LogSource
	Contracts      replica.Caller
	FactoryDecoder TopicDecoder
	UnionDecoder   TopicDecoder
	Ledger         *ledger.Ledger
	Checkpoint     Checkpointer
	Archive        storage.Storage
	Errors         storage.ErrorSink
	Publisher      EventPublisher
	Metrics        Observer
	Logger         *zap.Logger
}

// Runner streams logs from the chain into the ledger.
type Runner struct {
	cfg     RunConfig
	deps    Deps
	logger  *zap.Logger
	limiter ratelimit.Limiter
	retry   retryPolicy

	known      map[common.Address]struct{}
	checkpoint model.Checkpoint
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Archive == nil {
		deps.Archive = storage.Nop{}
	}
	if deps.Errors == nil {
		deps.Errors = storage.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopObserver{}
	}
	if deps.Checkpoint == nil {
		deps.Checkpoint = NewCheckpointStore("", false)
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RPS > 0 {
		limiter = ratelimit.New(cfg.RPS)
	}

	return &Runner{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.Named("indexer"),
		limiter: limiter,
		retry:   retryPolicy{Retries: cfg.MaxRetries, Base: cfg.RetryBackoff},
		known:   make(map[common.Address]struct{}),
	}
}

// Run executes the indexing loop. In follow mode it keeps polling for new blocks until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	if r.deps.Source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.deps.Ledger == nil {
		return fmt.Errorf("ledger is nil")
	}
	if r.deps.UnionDecoder == nil || r.deps.FactoryDecoder == nil {
		return fmt.Errorf("decoders are required")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Factory == (common.Address{}) && len(r.cfg.Unions) == 0 {
		return fmt.Errorf("a factory or at least one union address is required")
	}

	chainID, err := r.deps.Source.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from := r.cfg.FromBlock
	cp, ok, err := r.deps.Checkpoint.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		r.checkpoint = cp
		if cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint",
				zap.Uint64("last_processed", cp.LastProcessedBlock),
				zap.String("last_event", cp.LastEventKey.String()),
				zap.Uint64("from", from),
			)
		}
	}

	if err := r.loadKnownUnions(ctx, from); err != nil {
		return err
	}

	for {
		to, ready := r.cfg.ToBlock, true
		if to == 0 || r.cfg.Follow {
			latest, err := r.latestBlock(ctx)
			if err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
			head, ok := SafeHead(latest, r.cfg.Confirmations)
			ready = ok
			if to == 0 || head < to {
				to = head
			}
		}

		if ready && from <= to {
			if err := r.processRange(ctx, chainID.Uint64(), from, to); err != nil {
				return err
			}
			from = to + 1
		} else if !r.cfg.Follow {
			r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		}

		if !r.cfg.Follow || (r.cfg.ToBlock != 0 && from > r.cfg.ToBlock) {
			return nil
		}
		if err := sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (r *Runner) processRange(ctx context.Context, chainID, from, to uint64) error {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		started := time.Now()
		logs, err := r.processBatch(ctx, chainID, blockRange)
		r.deps.Metrics.ObserveBatch(err, logs, started)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) processBatch(ctx context.Context, chainID uint64, blockRange BlockRange) (int, error) {
	r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	ingestedAt := time.Now().UTC()

	var (
		records []model.LogRecord
		events  []model.Event
		failed  []model.Failure
	)
	collect := func(decoder TopicDecoder, addresses []common.Address) error {
		logs, err := r.filterLogs(ctx, blockRange, addresses, decoder.Topics())
		if err != nil {
			return err
		}
		for _, log := range logs {
			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			record := buildLogRecord(chainID, log, ts, ingestedAt)
			records = append(records, record)

			event, err := decoder.Decode(record)
			if err != nil {
				r.logger.Warn("decode failed",
					zap.String("address", record.Address),
					zap.String("key", record.Key().String()),
					zap.Error(err),
				)
				failed = append(failed, decode.Failure(record, "", err))
				continue
			}
			if created, ok := event.(model.UnionCreated); ok {
				r.known[created.Union] = struct{}{}
			}
			events = append(events, event)
		}
		return nil
	}

	if r.cfg.Factory != (common.Address{}) {
		if err := collect(r.deps.FactoryDecoder, []common.Address{r.cfg.Factory}); err != nil {
			return 0, fmt.Errorf("factory logs: %w", err)
		}
	}
	if unions := r.knownAddresses(); len(unions) > 0 {
		if err := collect(r.deps.UnionDecoder, unions); err != nil {
			return 0, fmt.Errorf("union logs: %w", err)
		}
	}

	if err := r.deps.Archive.PutLogBatch(records); err != nil {
		return 0, fmt.Errorf("store logs: %w", err)
	}
	if err := r.deps.Errors.PutErrors(failed); err != nil {
		return 0, fmt.Errorf("store decode errors: %w", err)
	}

	ledger.SortEvents(events)
	result, err := r.deps.Ledger.ApplyBatch(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("apply events: %w", err)
	}
	if r.deps.Publisher != nil && len(events) > 0 {
		if err := r.deps.Publisher.Publish(ctx, events); err != nil {
			return 0, fmt.Errorf("publish events: %w", err)
		}
	}

	next := model.Checkpoint{LastProcessedBlock: blockRange.To, LastEventKey: r.checkpoint.LastEventKey}
	if r.checkpoint.LastEventKey.Less(result.LastKey) {
		next.LastEventKey = result.LastKey
	}
	if err := r.deps.Checkpoint.Save(ctx, next); err != nil {
		return 0, err
	}
	r.checkpoint = next
	r.deps.Metrics.SetCheckpoint(next.LastProcessedBlock)

	r.logger.Info("batch complete",
		zap.Int("logs", len(records)),
		zap.Int("applied", result.Applied),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("rejected", result.Rejected),
		zap.Int("decode_errors", len(failed)),
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
	)
	return len(records), nil
}

// loadKnownUnions watches every stored union plus the configured ones. A configured
// union without an aggregate is bootstrapped from its replica contract, since its
// UnionCreated log lies before from or was emitted by another factory.
func (r *Runner) loadKnownUnions(ctx context.Context, from uint64) error {
	unions, err := r.deps.Ledger.Store().Unions(ctx)
	if err != nil {
		return fmt.Errorf("load unions: %w", err)
	}
	for _, u := range unions {
		r.known[u.Address] = struct{}{}
	}
	for _, addr := range r.cfg.Unions {
		if _, ok := r.known[addr]; ok {
			continue
		}
		if err := r.bootstrapUnion(ctx, addr, from); err != nil {
			return err
		}
		r.known[addr] = struct{}{}
	}
	r.logger.Info("known unions", zap.Int("count", len(r.known)))
	return nil
}

func (r *Runner) bootstrapUnion(ctx context.Context, addr common.Address, from uint64) error {
	if r.deps.Contracts == nil {
		return fmt.Errorf("union %s is not in the ledger and no contract reader is configured to bootstrap it", addr.Hex())
	}

	var (
		initialized    bool
		owner, primary common.Address
	)
	err := r.retry.do(ctx, func(ctx context.Context) error {
		r.limiter.Take()
		var err error
		if initialized, err = replica.IsInitialized(ctx, r.deps.Contracts, addr); err != nil || !initialized {
			return err
		}
		if owner, err = replica.Owner(ctx, r.deps.Contracts, addr); err != nil {
			return err
		}
		primary, err = replica.Primary(ctx, r.deps.Contracts, addr)
		return err
	})
	if err != nil {
		return fmt.Errorf("read union %s: %w", addr.Hex(), err)
	}
	if !initialized {
		return fmt.Errorf("union %s is not an initialized replica", addr.Hex())
	}

	ts, err := r.blockTimestampWithRetry(ctx, from)
	if err != nil {
		return fmt.Errorf("block timestamp %d: %w", from, err)
	}
	created := model.UnionCreated{
		EventMeta: model.EventMeta{Union: addr, Timestamp: ts},
		Primary:   primary,
		Owner:     owner,
	}
	res, err := r.deps.Ledger.Apply(ctx, created)
	if err != nil {
		return fmt.Errorf("bootstrap union %s: %w", addr.Hex(), err)
	}
	if res == ledger.ResultRejected {
		return fmt.Errorf("bootstrap union %s rejected", addr.Hex())
	}
	r.logger.Info("union bootstrapped from chain",
		zap.String("union", addr.Hex()),
		zap.String("owner", owner.Hex()),
		zap.String("primary", primary.Hex()),
		zap.Uint64("from", from),
	)
	return nil
}

func (r *Runner) knownAddresses() []common.Address {
	out := make([]common.Address, 0, len(r.known))
	for addr := range r.known {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0 })
	return out
}

func (r *Runner) filterLogs(ctx context.Context, blockRange BlockRange, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	var out []types.Log
	for start := 0; start < len(addresses); start += addressChunk {
		end := start + addressChunk
		if end > len(addresses) {
			end = len(addresses)
		}
		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, addresses[start:end], topics)
		if err != nil {
			return nil, fmt.Errorf("filter logs: %w", err)
		}
		out = append(out, logs...)
	}
	return out, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := r.retry.do(ctx, func(ctx context.Context) error {
		r.limiter.Take()
		var err error
		logs, err = r.deps.Source.FilterLogs(ctx, fromBlock, toBlock, addresses, topics)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry.do(ctx, func(ctx context.Context) error {
		r.limiter.Take()
		var err error
		ts, err = r.deps.Source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) latestBlock(ctx context.Context) (uint64, error) {
	var latest uint64
	err := r.retry.do(ctx, func(ctx context.Context) error {
		r.limiter.Take()
		var err error
		latest, err = r.deps.Source.LatestBlockNumber(ctx)
		return err
	})
	return latest, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

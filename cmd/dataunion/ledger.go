package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dataunion/internal/cache"
	"dataunion/internal/indexer"
	"dataunion/internal/ledger"
	"dataunion/internal/metrics"
	"dataunion/internal/storage"
	"dataunion/internal/storage/postgres"
)

type ledgerSetup struct {
	PGDSN         string
	Workers       int
	Errors        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ledgerRuntime is a ledger with the resources it owns.
type ledgerRuntime struct {
	ledger *ledger.Ledger
	pg     *postgres.Store
	errors storage.ErrorSink
	cache  *cache.UnionCache
}

// openLedger wires the ledger to Postgres when a DSN is given, otherwise to an in-memory store.
func openLedger(ctx context.Context, setup ledgerSetup, logger *zap.Logger) (*ledgerRuntime, error) {
	rt := &ledgerRuntime{errors: storage.Nop{}}

	var store ledger.Store
	if setup.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, setup.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.pg = pg
		store = pg
	} else {
		logger.Warn("no pg-dsn configured, ledger state is kept in memory")
		store = ledger.NewMemoryStore()
	}

	if setup.Errors != "" {
		rt.errors = storage.NewJSONLFile(setup.Errors)
	}

	opts := ledger.Options{
		Logger:   logger,
		Metrics:  metrics.NewLedger(),
		OnReject: indexer.RejectRecorder(rt.errors, logger),
		Workers:  setup.Workers,
	}
	if setup.RedisAddr != "" {
		c, err := cache.NewUnionCache(ctx, cache.Config{
			Addr:     setup.RedisAddr,
			Password: setup.RedisPassword,
			DB:       setup.RedisDB,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.cache = c
		opts.Publisher = c
	}

	rt.ledger = ledger.New(store, opts)
	return rt, nil
}

func (rt *ledgerRuntime) Close() {
	if rt.cache != nil {
		rt.cache.Close()
	}
	if rt.pg != nil {
		rt.pg.Close()
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dataunion/internal/chain"
	"dataunion/internal/config"
	"dataunion/internal/decode"
	"dataunion/internal/indexer"
	"dataunion/internal/metrics"
	"dataunion/internal/storage"
	"dataunion/internal/stream"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index factory and union logs into the statistics ledger",
		RunE:  runIndex,
	}

	cmd.Flags().String("rpc", "", "RPC URL of the ledger being indexed")
	cmd.Flags().String("factory", "", "factory address; unions it creates are discovered automatically")
	cmd.Flags().StringSlice("union", nil, "union replicas to watch; ones missing from the ledger are bootstrapped from their owner() and mainnetDataUnion()")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().Bool("follow", false, "keep polling for new blocks")
	cmd.Flags().Duration("poll-interval", 5*time.Second, "poll interval in follow mode")
	cmd.Flags().Uint64("confirmations", 0, "stay this many blocks behind the chain head")
	cmd.Flags().Int("rps", 0, "maximum RPC requests per second, 0 means unlimited")
	cmd.Flags().String("checkpoint", "", "checkpoint file path; defaults to the indexer_state table when pg-dsn is set")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; empty keeps the ledger in memory")
	cmd.Flags().Int("workers", 4, "unions applied concurrently per batch")
	cmd.Flags().String("archive", "", "optional raw log JSONL path")
	cmd.Flags().String("errors", "./data/errors.jsonl", "decode and integrity errors JSONL path")
	cmd.Flags().StringSlice("kafka-brokers", nil, "publish applied events to these Kafka brokers")
	cmd.Flags().String("kafka-topic", "dataunion.events", "Kafka topic for events")
	cmd.Flags().String("redis-addr", "", "Redis address for the union cache")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("metrics-addr", "", "address for the Prometheus /metrics endpoint")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	var factory common.Address
	if cfg.Factory != "" {
		if !common.IsHexAddress(cfg.Factory) {
			return fmt.Errorf("invalid factory address: %s", cfg.Factory)
		}
		factory = common.HexToAddress(cfg.Factory)
	}
	unions, err := config.ParseAddresses("union", cfg.Unions)
	if err != nil {
		return err
	}

	factoryDecoder, unionDecoder, err := decode.NewPair(decode.Config{Factory: factory, Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	rt, err := openLedger(ctx, ledgerSetup{
		PGDSN:         cfg.PGDSN,
		Workers:       cfg.Workers,
		Errors:        cfg.Errors,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	deps := indexer.Deps{
		Source:         chainClient,
		Contracts:      chainClient,
		FactoryDecoder: factoryDecoder,
		UnionDecoder:   unionDecoder,
		Ledger:         rt.ledger,
		Checkpoint:     selectCheckpoint(cfg, rt, logger),
		Errors:         rt.errors,
		Metrics:        metrics.NewIndexer(),
		Logger:         logger,
	}
	if cfg.Archive != "" {
		deps.Archive = storage.NewJSONLFile(cfg.Archive)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := stream.NewProducer(stream.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		deps.Publisher = producer
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:     cfg.FromBlock,
		ToBlock:       cfg.ToBlock,
		Factory:       factory,
		Unions:        unions,
		BatchSize:     cfg.BatchSize,
		Follow:        cfg.Follow,
		PollInterval:  cfg.PollInterval,
		RPS:           cfg.RPS,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		Confirmations: cfg.Confirmations,
	}, deps)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("factory", cfg.Factory),
		zap.Int("unions", len(unions)),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("follow", cfg.Follow),
		zap.Bool("postgres", rt.pg != nil),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("kafka", deps.Publisher != nil),
		zap.Bool("redis", rt.cache != nil),
	)

	if err := runner.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("indexer stopped")
			return nil
		}
		return err
	}
	return nil
}

func selectCheckpoint(cfg config.IndexConfig, rt *ledgerRuntime, logger *zap.Logger) indexer.Checkpointer {
	switch {
	case !cfg.CheckpointEnabled:
		return indexer.NewCheckpointStore("", false)
	case rt.pg == nil:
		logger.Warn("checkpointing disabled for the in-memory ledger")
		return indexer.NewCheckpointStore("", false)
	case cfg.Checkpoint != "":
		return indexer.NewCheckpointStore(cfg.Checkpoint, true)
	default:
		return &indexer.DBCheckpoint{Store: rt.pg, Name: "indexer"}
	}
}

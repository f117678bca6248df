package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dataunion/internal/config"
	"dataunion/internal/metrics"
	"dataunion/internal/stream"
)

func newConsumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Apply events from a Kafka topic to the statistics ledger",
		RunE:  runConsume,
	}

	cmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers (comma-separated)")
	cmd.Flags().String("kafka-topic", "dataunion.events", "Kafka topic for events")
	cmd.Flags().String("kafka-group", "dataunion-ledger", "Kafka consumer group")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; empty keeps the ledger in memory")
	cmd.Flags().String("errors", "./data/errors.jsonl", "integrity errors JSONL path")
	cmd.Flags().String("redis-addr", "", "Redis address for the union cache")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("metrics-addr", "", "address for the Prometheus /metrics endpoint")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runConsume(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConsume(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	// one message at a time keeps each partition in key order
	rt, err := openLedger(ctx, ledgerSetup{
		PGDSN:         cfg.PGDSN,
		Workers:       1,
		Errors:        cfg.Errors,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	consumer, err := stream.NewConsumer(stream.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroup,
	}, rt.ledger, metrics.NewConsumer(), logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	logger.Info("consumer start",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.KafkaGroup),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	return consumer.Run(ctx)
}

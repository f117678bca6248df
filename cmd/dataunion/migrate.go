package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dataunion/internal/config"
	"dataunion/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or report the Postgres schema",
		RunE:  runMigrate,
	}

	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("direction", postgres.MigrateUp, "up, down or status")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadMigrate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	logger.Info("migrate", zap.String("direction", cfg.Direction), zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	return postgres.Migrate(cfg.PGDSN, cfg.Direction, logger)
}

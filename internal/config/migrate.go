package config

import (
	"github.com/spf13/pflag"
)

// MigrateConfig holds configuration for the migrate command.
type MigrateConfig struct {
	PGDSN     string
	Direction string
	LogLevel  string
}

func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"direction": "up",
	})
	if err != nil {
		return MigrateConfig{}, err
	}

	return MigrateConfig{
		PGDSN:     v.GetString("pg-dsn"),
		Direction: v.GetString("direction"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}

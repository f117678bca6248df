package config

import (
	"time"

	"github.com/spf13/pflag"
)

// IndexConfig holds configuration for the index command.
type IndexConfig struct {
	RPCURL            string
	Factory           string
	Unions            []string
	Topic0Map         map[string]string
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Follow            bool
	PollInterval      time.Duration
	RPS               int
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	Confirmations     uint64
	PGDSN             string
	Workers           int
	Archive           string
	Errors            string
	KafkaBrokers      []string
	KafkaTopic        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	MetricsAddr       string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into IndexConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (IndexConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(2000),
		"poll-interval":      5 * time.Second,
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"workers":            4,
		"errors":             "./data/errors.jsonl",
	})
	if err != nil {
		return IndexConfig{}, err
	}

	return IndexConfig{
		RPCURL:            v.GetString("rpc"),
		Factory:           v.GetString("factory"),
		Unions:            getStringSlice(v, "union"),
		Topic0Map:         getStringMap(v, "topic0-map"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Follow:            v.GetBool("follow"),
		PollInterval:      v.GetDuration("poll-interval"),
		RPS:               v.GetInt("rps"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Confirmations:     v.GetUint64("confirmations"),
		PGDSN:             v.GetString("pg-dsn"),
		Workers:           v.GetInt("workers"),
		Archive:           v.GetString("archive"),
		Errors:            v.GetString("errors"),
		KafkaBrokers:      getStringSlice(v, "kafka-brokers"),
		KafkaTopic:        v.GetString("kafka-topic"),
		RedisAddr:         v.GetString("redis-addr"),
		RedisPassword:     v.GetString("redis-password"),
		RedisDB:           v.GetInt("redis-db"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}

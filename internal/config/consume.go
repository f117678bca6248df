package config

import (
	"github.com/spf13/pflag"
)

// ConsumeConfig holds configuration for the consume command.
type ConsumeConfig struct {
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	PGDSN         string
	Errors        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MetricsAddr   string
	LogLevel      string
}

// LoadConsume merges config file, environment variables, and flags into ConsumeConfig.
func LoadConsume(cfgFile string, flags *pflag.FlagSet) (ConsumeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"kafka-topic": "dataunion.events",
		"kafka-group": "dataunion-ledger",
		"errors":      "./data/errors.jsonl",
	})
	if err != nil {
		return ConsumeConfig{}, err
	}

	return ConsumeConfig{
		KafkaBrokers:  getStringSlice(v, "kafka-brokers"),
		KafkaTopic:    v.GetString("kafka-topic"),
		KafkaGroup:    v.GetString("kafka-group"),
		PGDSN:         v.GetString("pg-dsn"),
		Errors:        v.GetString("errors"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}

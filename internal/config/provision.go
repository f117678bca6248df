package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// PredictConfig holds configuration for the predict command.
type PredictConfig struct {
	Template  string
	Factory   string
	Primaries []string
	RPCURL    string
	LogLevel  string
}

func LoadPredict(cfgFile string, flags *pflag.FlagSet) (PredictConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return PredictConfig{}, err
	}

	return PredictConfig{
		Template:  v.GetString("template"),
		Factory:   v.GetString("factory"),
		Primaries: getStringSlice(v, "primary"),
		RPCURL:    v.GetString("rpc"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}

// ProvisionConfig holds configuration for the provision command, which runs the factory against an in-process ledger.
type ProvisionConfig struct {
	Template       string
	Factory        string
	Relay          string
	Token          string
	FactoryOwner   string
	UnionOwner     string
	Agents         []string
	Primaries      []string
	FactoryBalance string
	Funding        map[string]string
	LogLevel       string
}

// LoadProvision merges config file, environment variables, and flags into ProvisionConfig.
// Funding amounts come from the initial-replica-funding, initial-owner-funding and default-member-funding keys.
func LoadProvision(cfgFile string, flags *pflag.FlagSet) (ProvisionConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"factory-balance": "0",
	})
	if err != nil {
		return ProvisionConfig{}, err
	}

	funding := make(map[string]string)
	for _, key := range []string{"initial-replica-funding", "initial-owner-funding", "default-member-funding"} {
		value := v.GetString(key)
		if _, err := ParseWei(value); err != nil {
			return ProvisionConfig{}, fmt.Errorf("%s: %w", key, err)
		}
		funding[key] = value
	}
	if _, err := ParseWei(v.GetString("factory-balance")); err != nil {
		return ProvisionConfig{}, fmt.Errorf("factory-balance: %w", err)
	}

	return ProvisionConfig{
		Template:       v.GetString("template"),
		Factory:        v.GetString("factory"),
		Relay:          v.GetString("relay"),
		Token:          v.GetString("token"),
		FactoryOwner:   v.GetString("factory-owner"),
		UnionOwner:     v.GetString("union-owner"),
		Agents:         getStringSlice(v, "agent"),
		Primaries:      getStringSlice(v, "primary"),
		FactoryBalance: v.GetString("factory-balance"),
		Funding:        funding,
		LogLevel:       v.GetString("log-level"),
	}, nil
}

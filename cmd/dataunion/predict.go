package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dataunion/internal/chain"
	"dataunion/internal/clone"
	"dataunion/internal/config"
	"dataunion/internal/factory"
)

type prediction struct {
	Primary  string `json:"primary"`
	Replica  string `json:"replica"`
	Salt     string `json:"salt"`
	Deployed *bool  `json:"deployed,omitempty"`
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Compute replica addresses for primary unions",
		RunE:  runPredict,
	}

	cmd.Flags().String("template", "", "replica template address")
	cmd.Flags().String("factory", "", "factory (deployer) address")
	cmd.Flags().StringSlice("primary", nil, "primary union addresses (comma-separated)")
	cmd.Flags().String("rpc", "", "optional RPC URL to check whether the replica is deployed")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runPredict(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadPredict(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	template, err := config.ParseAddress("template", cfg.Template)
	if err != nil {
		return err
	}
	deployer, err := config.ParseAddress("factory", cfg.Factory)
	if err != nil {
		return err
	}
	primaries, err := config.ParseAddresses("primary", cfg.Primaries)
	if err != nil {
		return err
	}
	if len(primaries) == 0 {
		return fmt.Errorf("at least one primary address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client *chain.Client
	if cfg.RPCURL != "" {
		client, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	for _, primary := range primaries {
		salt := factory.SaltFor(primary)
		replica := clone.PredictAddress(template, deployer, salt)
		p := prediction{Primary: primary.Hex(), Replica: replica.Hex(), Salt: salt.Hex()}

		if client != nil {
			code, err := client.CodeAt(ctx, replica)
			if err != nil {
				return fmt.Errorf("code at %s: %w", replica.Hex(), err)
			}
			deployed := len(code) > 0
			if deployed {
				if impl, ok := clone.TemplateOf(code); !ok || impl != template {
					logger.Warn("deployed code is not a proxy of the template",
						zap.String("replica", replica.Hex()),
						zap.String("template", template.Hex()),
					)
				}
			}
			p.Deployed = &deployed
		}

		if err := out.Encode(p); err != nil {
			return err
		}
	}
	return nil
}

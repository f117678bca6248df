package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dataunion/internal/clone"
	"dataunion/internal/config"
	"dataunion/internal/factory"
	"dataunion/internal/metrics"
	"dataunion/internal/relay"
	"dataunion/internal/replica"
	"dataunion/internal/sidechain"
)

type provisionResult struct {
	Primary        string   `json:"primary"`
	Replica        string   `json:"replica"`
	Status         string   `json:"status"`
	Owner          string   `json:"owner,omitempty"`
	ReplicaBalance string   `json:"replica_balance,omitempty"`
	Events         []string `json:"events,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func newProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Dry-run replica provisioning against an in-process ledger",
		RunE:  runProvision,
	}

	cmd.Flags().String("template", "", "replica template address")
	cmd.Flags().String("factory", "", "factory (deployer) address")
	cmd.Flags().String("relay", "", "relay (bridge) address")
	cmd.Flags().String("token", "", "currency token address")
	cmd.Flags().String("factory-owner", "", "factory owner address")
	cmd.Flags().String("union-owner", "", "owner of the provisioned replicas")
	cmd.Flags().StringSlice("agent", nil, "agent addresses (comma-separated)")
	cmd.Flags().StringSlice("primary", nil, "primary union addresses (comma-separated)")
	cmd.Flags().String("factory-balance", "0", "native balance minted to the factory, in wei")
	cmd.Flags().String("initial-replica-funding", "", "funding sent to each new replica, in wei")
	cmd.Flags().String("initial-owner-funding", "", "funding sent to each union owner, in wei")
	cmd.Flags().String("default-member-funding", "", "funding replicas send to new members, in wei")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runProvision(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadProvision(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var addrs struct {
		template, factory, relay, token, factoryOwner, unionOwner common.Address
	}
	for _, a := range []struct {
		name  string
		input string
		out   *common.Address
	}{
		{"template", cfg.Template, &addrs.template},
		{"factory", cfg.Factory, &addrs.factory},
		{"relay", cfg.Relay, &addrs.relay},
		{"token", cfg.Token, &addrs.token},
		{"factory-owner", cfg.FactoryOwner, &addrs.factoryOwner},
		{"union-owner", cfg.UnionOwner, &addrs.unionOwner},
	} {
		if *a.out, err = config.ParseAddress(a.name, a.input); err != nil {
			return err
		}
	}
	agents, err := config.ParseAddresses("agent", cfg.Agents)
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

	var params factory.FundingParams
	for key, dst := range map[string]**big.Int{
		"initial-replica-funding": &params.InitialReplicaFunding,
		"initial-owner-funding":   &params.InitialOwnerFunding,
		"default-member-funding":  &params.DefaultMemberFunding,
	} {
		if *dst, err = config.ParseWei(cfg.Funding[key]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	balance, err := config.ParseWei(cfg.FactoryBalance)
	if err != nil {
		return fmt.Errorf("factory-balance: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	substrate := sidechain.New()
	substrate.RegisterTemplate(addrs.template, replica.Logic{})
	substrate.Mint(addrs.factory, balance)
	bridge := relay.NewLocalBridge(addrs.relay)
	recorder := &factory.Recorder{}

	f, err := factory.New(factory.Config{
		Owner:    addrs.factoryOwner,
		Template: addrs.template,
		Token:    addrs.token,
		Params:   params,
	}, factory.Deps{
		Deployer:      clone.NewDeployer(substrate, addrs.factory),
		Authenticator: relay.NewAuthenticator(bridge, addrs.relay),
		Currency:      substrate,
		Emitter:       factory.MultiEmitter{factory.NewLogEmitter(logger), recorder},
		Metrics:       metrics.NewFactory(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	for _, primary := range primaries {
		seen := len(recorder.Events())
		res := provision(ctx, bridge, f, substrate, primary, addrs.unionOwner, agents)
		for _, ev := range recorder.Events()[seen:] {
			res.Events = append(res.Events, string(ev.Kind))
		}
		if err := out.Encode(res); err != nil {
			return err
		}
	}

	logger.Info("provision complete", zap.Int("primaries", len(primaries)))
	return nil
}

func provision(
	ctx context.Context,
	bridge *relay.LocalBridge,
	f *factory.Factory,
	substrate *sidechain.Chain,
	primary, owner common.Address,
	agents []common.Address,
) provisionResult {
	res := provisionResult{Primary: primary.Hex(), Replica: f.PredictReplica(primary).Hex()}

	var addr common.Address
	err := bridge.Deliver(ctx, primary, func(ctx context.Context, caller common.Address) error {
		var err error
		addr, err = f.ProvisionReplica(ctx, caller, owner, agents)
		return err
	})
	switch {
	case errors.Is(err, clone.ErrDeploymentCollision):
		res.Status = "collision"
		res.Error = err.Error()
		return res
	case err != nil:
		res.Status = "error"
		res.Error = err.Error()
		return res
	}

	res.Status = "created"
	if replicaOwner, err := replica.Owner(ctx, substrate, addr); err == nil {
		res.Owner = replicaOwner.Hex()
	}
	if bal, err := substrate.BalanceAt(ctx, addr); err == nil {
		res.ReplicaBalance = bal.String()
	}
	return res
}

// Package factory provisions per-union replicas on the secondary ledger when the relay asks for them.
package factory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dataunion/internal/clone"
	"dataunion/internal/relay"
	"dataunion/internal/replica"
)

// ErrNotOwner rejects configuration changes from anyone but the factory owner.
var ErrNotOwner = errors.New("caller is not the factory owner")

// Authenticator resolves the logical sender of a relayed call.
type Authenticator interface {
	Address() common.Address
	Authenticate(ctx context.Context, caller common.Address) (common.Address, error)
}

// Deployer creates initialized clones.
type Deployer interface {
	Address() common.Address
	PredictAddress(template common.Address, salt common.Hash) common.Address
	DeployAndInit(ctx context.Context, template common.Address, initPayload []byte, salt common.Hash) (common.Address, error)
}

// Currency moves native value on the secondary ledger.
type Currency interface {
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// Observer records provisioning outcomes.
type Observer interface {
	ObserveProvision(status string, started time.Time)
	ObserveFunding(recipient, status string)
}

type nopObserver struct{}

func (nopObserver) ObserveProvision(string, time.Time) {}
func (nopObserver) ObserveFunding(string, string)      {}

// Config describes one factory deployment.
type Config struct {
	Owner    common.Address
	Template common.Address
	Token    common.Address
	Params   FundingParams
}

// Deps are the collaborators a factory works with.
type Deps struct {
	Deployer      Deployer
	Authenticator Authenticator
	Currency      Currency
	Emitter       Emitter
	Metrics       Observer
	Logger        *zap.Logger
}

// Factory deploys replicas at addresses derived from the primary union address.
type Factory struct {
	owner    common.Address
	template common.Address
	token    common.Address

	mu     sync.RWMutex
	params FundingParams

	deployer Deployer
	auth     Authenticator
	currency Currency
	emitter  Emitter
	metrics  Observer
	logger   *zap.Logger
}

func New(cfg Config, deps Deps) (*Factory, error) {
	if deps.Deployer == nil {
		return nil, fmt.Errorf("deployer is required")
	}
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if cfg.Template == (common.Address{}) {
		return nil, fmt.Errorf("template is required")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := deps.Emitter
	if emitter == nil {
		emitter = NewLogEmitter(logger)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopObserver{}
	}

	return &Factory{
		owner:    cfg.Owner,
		template: cfg.Template,
		token:    cfg.Token,
		params:   cfg.Params.clone(),
		deployer: deps.Deployer,
		auth:     deps.Authenticator,
		currency: deps.Currency,
		emitter:  emitter,
		metrics:  metrics,
		logger:   logger.Named("factory"),
	}, nil
}

// Address returns the factory account, which is also the deployer of every replica.
func (f *Factory) Address() common.Address {
	return f.deployer.Address()
}

// Owner returns the account allowed to configure the factory.
func (f *Factory) Owner() common.Address {
	return f.owner
}

// Params returns a copy of the current funding parameters.
func (f *Factory) Params() FundingParams {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.params.clone()
}

// SaltFor derives the deployment salt of the replica for a primary union.
func SaltFor(primary common.Address) common.Hash {
	return common.BytesToHash(primary.Bytes())
}

// PredictReplica returns the address the replica of primary has or will have.
func (f *Factory) PredictReplica(primary common.Address) common.Address {
	return f.deployer.PredictAddress(f.template, SaltFor(primary))
}

// Configure sets a funding parameter. It reports false and emits nothing when value is already current.
func (f *Factory) Configure(ctx context.Context, caller common.Address, param Parameter, value *big.Int) (bool, error) {
	if caller != f.owner {
		return false, fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	if value == nil || value.Sign() < 0 {
		return false, fmt.Errorf("invalid value for %s", param)
	}

	f.mu.Lock()
	current, err := f.params.Get(param)
	if err != nil {
		f.mu.Unlock()
		return false, err
	}
	if current.Cmp(value) == 0 {
		f.mu.Unlock()
		return false, nil
	}
	f.params.set(param, value)
	f.mu.Unlock()

	f.emitter.Emit(ctx, Event{
		Kind:      ParameterChanged,
		Parameter: param,
		OldValue:  current,
		NewValue:  new(big.Int).Set(value),
	})
	return true, nil
}

// ProvisionReplica deploys and initializes the replica of the union that sent the relayed call.
func (f *Factory) ProvisionReplica(ctx context.Context, caller, owner common.Address, agents []common.Address) (common.Address, error) {
	started := time.Now()

	primary, err := f.auth.Authenticate(ctx, caller)
	if err != nil {
		f.metrics.ObserveProvision(provisionStatus(err), started)
		return common.Address{}, err
	}

	params := f.Params()
	payload, err := replica.EncodeInit(replica.InitParams{
		Owner:                owner,
		Token:                f.token,
		Agents:               agents,
		Relay:                f.auth.Address(),
		Primary:              primary,
		DefaultMemberFunding: params.DefaultMemberFunding,
	})
	if err != nil {
		f.metrics.ObserveProvision(provisionStatus(err), started)
		return common.Address{}, fmt.Errorf("encode init: %w", err)
	}

	addr, err := f.deployer.DeployAndInit(ctx, f.template, payload, SaltFor(primary))
	if err != nil {
		f.metrics.ObserveProvision(provisionStatus(err), started)
		f.logger.Error("replica deployment failed",
			zap.String("primary", primary.Hex()),
			zap.Error(err),
		)
		return common.Address{}, err
	}

	f.emitter.Emit(ctx, Event{
		Kind:     ReplicaCreated,
		Primary:  primary,
		Replica:  addr,
		Owner:    owner,
		Template: f.template,
	})
	f.metrics.ObserveProvision(provisionStatus(nil), started)
	f.logger.Info("replica deployed",
		zap.String("primary", primary.Hex()),
		zap.String("replica", addr.Hex()),
		zap.String("owner", owner.Hex()),
	)

	f.fund(ctx, ReplicaFunded, addr, params.InitialReplicaFunding)
	f.fund(ctx, OwnerFunded, owner, params.InitialOwnerFunding)
	return addr, nil
}

// fund transfers amount from the factory to recipient. Failures are logged only.
func (f *Factory) fund(ctx context.Context, kind EventKind, recipient common.Address, amount *big.Int) {
	label := "replica"
	if kind == OwnerFunded {
		label = "owner"
	}
	if amount == nil || amount.Sign() == 0 {
		return
	}
	if f.currency == nil {
		f.metrics.ObserveFunding(label, "disabled")
		return
	}

	log := f.logger.With(
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()),
	)

	balance, err := f.currency.BalanceAt(ctx, f.Address())
	if err != nil {
		f.metrics.ObserveFunding(label, "error")
		log.Warn("factory balance lookup failed", zap.Error(err))
		return
	}
	if balance.Cmp(amount) < 0 {
		f.metrics.ObserveFunding(label, "insufficient_balance")
		log.Warn("factory balance too low for funding", zap.String("balance", balance.String()))
		return
	}
	if err := f.currency.Transfer(ctx, f.Address(), recipient, amount); err != nil {
		f.metrics.ObserveFunding(label, "error")
		log.Warn("funding transfer failed", zap.Error(err))
		return
	}

	f.metrics.ObserveFunding(label, "sent")
	f.emitter.Emit(ctx, Event{Kind: kind, Recipient: recipient, Amount: new(big.Int).Set(amount)})
}

func provisionStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, relay.ErrUnauthorizedCaller):
		return "unauthorized"
	case errors.Is(err, clone.ErrDeploymentCollision):
		return "collision"
	default:
		return "error"
	}
}

package factory

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"dataunion/internal/clone"
	"dataunion/internal/relay"
	"dataunion/internal/replica"
	"dataunion/internal/sidechain"
)

var (
	factoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	relayAddr    = common.HexToAddress("0x00000000000000000000000000000000000a3b00")
	templateAddr = common.HexToAddress("0x0000000000000000000000000000000000007e30")
	tokenAddr    = common.HexToAddress("0x000000000000000000000000000000000000d474")
	factoryOwner = common.HexToAddress("0x0000000000000000000000000000000000000123")
	unionOwner   = common.HexToAddress("0x0000000000000000000000000000000000000456")
	primaryUnion = common.HexToAddress("0x5d8ed0ad3a0a17a2b0c6d51e3f6a0a4d8a5b6c7e")
)

type env struct {
	chain    *sidechain.Chain
	bridge   *relay.LocalBridge
	factory  *Factory
	recorder *Recorder
}

func newEnv(t *testing.T, params FundingParams) *env {
	t.Helper()

	chain := sidechain.New()
	chain.RegisterTemplate(templateAddr, replica.Logic{})
	bridge := relay.NewLocalBridge(relayAddr)
	recorder := &Recorder{}

	f, err := New(Config{
		Owner:    factoryOwner,
		Template: templateAddr,
		Token:    tokenAddr,
		Params:   params,
	}, Deps{
		Deployer:      clone.NewDeployer(chain, factoryAddr),
		Authenticator: relay.NewAuthenticator(bridge, relayAddr),
		Currency:      chain,
		Emitter:       recorder,
	})
	require.NoError(t, err)
	return &env{chain: chain, bridge: bridge, factory: f, recorder: recorder}
}

func (e *env) provision(ctx context.Context, primary common.Address) (common.Address, error) {
	var addr common.Address
	err := e.bridge.Deliver(ctx, primary, func(ctx context.Context, caller common.Address) error {
		var err error
		addr, err = e.factory.ProvisionReplica(ctx, caller, unionOwner, []common.Address{factoryOwner})
		return err
	})
	return addr, err
}

func TestProvisionReplicaAtPredictedAddress(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{DefaultMemberFunding: big.NewInt(7)})

	predicted := e.factory.PredictReplica(primaryUnion)
	addr, err := e.provision(ctx, primaryUnion)
	require.NoError(t, err)
	require.Equal(t, predicted, addr)
	require.Equal(t, clone.PredictAddress(templateAddr, factoryAddr, SaltFor(primaryUnion)), addr, "salt derivation")

	owner, err := replica.Owner(ctx, e.chain, addr)
	require.NoError(t, err)
	require.Equal(t, unionOwner, owner)
	primary, err := replica.Primary(ctx, e.chain, addr)
	require.NoError(t, err)
	require.Equal(t, primaryUnion, primary)

	events := e.recorder.Events()
	require.Equal(t, []EventKind{ReplicaCreated}, e.recorder.Kinds())
	require.Equal(t, primaryUnion, events[0].Primary)
	require.Equal(t, addr, events[0].Replica)
	require.Equal(t, templateAddr, events[0].Template)
}

func TestProvisionReplicaCollision(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{})

	_, err := e.provision(ctx, primaryUnion)
	require.NoError(t, err)
	_, err = e.provision(ctx, primaryUnion)
	require.ErrorIs(t, err, clone.ErrDeploymentCollision)
	require.Len(t, e.recorder.Events(), 1)
}

func TestProvisionReplicaConcurrentSameSalt(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{})

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.provision(ctx, primaryUnion)
		}(i)
	}
	wg.Wait()

	var ok, collisions int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, clone.ErrDeploymentCollision)
		collisions++
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, collisions)
}

func TestProvisionReplicaUnauthorized(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{})

	_, err := e.factory.ProvisionReplica(ctx, factoryOwner, unionOwner, nil)
	require.ErrorIs(t, err, relay.ErrUnauthorizedCaller)

	code, err := e.chain.CodeAt(ctx, e.factory.PredictReplica(factoryOwner))
	require.NoError(t, err)
	require.Empty(t, code, "no deployment after rejection")
	require.Empty(t, e.recorder.Events())
}

func TestProvisionReplicaFunding(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{
		InitialReplicaFunding: big.NewInt(300),
		InitialOwnerFunding:   big.NewInt(200),
	})
	e.chain.Mint(factoryAddr, big.NewInt(1000))

	addr, err := e.provision(ctx, primaryUnion)
	require.NoError(t, err)

	require.Equal(t, []EventKind{ReplicaCreated, ReplicaFunded, OwnerFunded}, e.recorder.Kinds())
	requireBalance(t, e.chain, addr, 300)
	requireBalance(t, e.chain, unionOwner, 200)
	requireBalance(t, e.chain, factoryAddr, 500)
}

func TestProvisionReplicaWithoutBalance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{
		InitialReplicaFunding: big.NewInt(300),
		InitialOwnerFunding:   big.NewInt(200),
	})

	addr, err := e.provision(ctx, primaryUnion)
	require.NoError(t, err, "provision must succeed without balance")
	require.Equal(t, []EventKind{ReplicaCreated}, e.recorder.Kinds())
	requireBalance(t, e.chain, addr, 0)
}

func TestProvisionReplicaPartialFunding(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{
		InitialReplicaFunding: big.NewInt(300),
		InitialOwnerFunding:   big.NewInt(200),
	})
	e.chain.Mint(factoryAddr, big.NewInt(400))

	addr, err := e.provision(ctx, primaryUnion)
	require.NoError(t, err)
	require.Equal(t, []EventKind{ReplicaCreated, ReplicaFunded}, e.recorder.Kinds())
	requireBalance(t, e.chain, addr, 300)
	requireBalance(t, e.chain, unionOwner, 0)
	requireBalance(t, e.chain, factoryAddr, 100)
}

func TestConfigure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{DefaultMemberFunding: big.NewInt(5)})

	_, err := e.factory.Configure(ctx, unionOwner, DefaultMemberFunding, big.NewInt(9))
	require.ErrorIs(t, err, ErrNotOwner)

	changed, err := e.factory.Configure(ctx, factoryOwner, DefaultMemberFunding, big.NewInt(5))
	require.NoError(t, err)
	require.False(t, changed, "unchanged value is a no-op")
	require.Empty(t, e.recorder.Events())

	changed, err = e.factory.Configure(ctx, factoryOwner, DefaultMemberFunding, big.NewInt(9))
	require.NoError(t, err)
	require.True(t, changed)
	events := e.recorder.Events()
	require.Len(t, events, 1)
	require.Equal(t, ParameterChanged, events[0].Kind)
	require.Equal(t, DefaultMemberFunding, events[0].Parameter)
	require.Equal(t, int64(5), events[0].OldValue.Int64())
	require.Equal(t, int64(9), events[0].NewValue.Int64())
	require.Equal(t, int64(9), e.factory.Params().DefaultMemberFunding.Int64())

	_, err = e.factory.Configure(ctx, factoryOwner, Parameter("bogus"), big.NewInt(1))
	require.Error(t, err, "unknown parameter")
}

func TestProvisionUsesCurrentMemberFunding(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, FundingParams{DefaultMemberFunding: big.NewInt(5)})

	_, err := e.factory.Configure(ctx, factoryOwner, DefaultMemberFunding, big.NewInt(11))
	require.NoError(t, err)
	addr, err := e.provision(ctx, primaryUnion)
	require.NoError(t, err)

	parsed, err := replica.ABI()
	require.NoError(t, err)
	data, _ := parsed.Pack("newMemberEth")
	out, err := e.chain.Call(ctx, common.Address{}, addr, data)
	require.NoError(t, err)
	values, err := parsed.Unpack("newMemberEth", out)
	require.NoError(t, err)
	require.Equal(t, int64(11), values[0].(*big.Int).Int64())
}

func requireBalance(t *testing.T, chain *sidechain.Chain, addr common.Address, want int64) {
	t.Helper()

	got, err := chain.BalanceAt(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, want, got.Int64(), "balance of %s", addr.Hex())
}

func TestMultiEmitterFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	MultiEmitter{a, b}.Emit(context.Background(), Event{Kind: OwnerFunded})
	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

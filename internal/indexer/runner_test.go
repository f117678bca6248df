package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"dataunion/internal/decode"
	"dataunion/internal/ledger"
	"dataunion/internal/model"
	"dataunion/internal/replica"
)

var (
	testFactory = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	testUnion   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	testPrimary = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	testOwner   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	testMember  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type fakeSource struct {
	mu     sync.Mutex
	logs   []types.Log
	latest uint64
	calls  int
}

func (f *fakeSource) ChainID(context.Context) (*big.Int, error) { return big.NewInt(100), nil }

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return f.latest, nil }

func (f *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_006_400 + number*5, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	addrSet := make(map[common.Address]bool, len(addresses))
	for _, a := range addresses {
		addrSet[a] = true
	}
	topicSet := make(map[common.Hash]bool, len(topic0))
	for _, t := range topic0 {
		topicSet[t] = true
	}

	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if !addrSet[l.Address] || !topicSet[l.Topics[0]] {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

type memCheckpoint struct {
	cp    model.Checkpoint
	ok    bool
	saves int
}

func (m *memCheckpoint) Load(context.Context) (model.Checkpoint, bool, error) { return m.cp, m.ok, nil }

func (m *memCheckpoint) Save(_ context.Context, cp model.Checkpoint) error {
	m.cp, m.ok = cp, true
	m.saves++
	return nil
}

type errSink struct{ records []model.Failure }

func (s *errSink) PutErrors(records []model.Failure) error {
	s.records = append(s.records, records...)
	return nil
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func createdLog(t *testing.T, block uint64, tx, index uint) types.Log {
	t.Helper()
	parsed, err := decode.FactoryABI()
	require.NoError(t, err)
	event := parsed.Events["SidechainDUCreated"]
	data, err := event.Inputs.NonIndexed().Pack(common.HexToAddress("0x00000000000000000000000000000000000000c0"))
	require.NoError(t, err)
	return types.Log{
		Address:     testFactory,
		Topics:      []common.Hash{event.ID, addressTopic(testPrimary), addressTopic(testUnion), addressTopic(testOwner)},
		Data:        data,
		BlockNumber: block,
		TxIndex:     tx,
		Index:       index,
	}
}

func unionLog(t *testing.T, name string, block uint64, tx, index uint, topics []common.Hash, args ...interface{}) types.Log {
	t.Helper()
	parsed, err := decode.UnionABI()
	require.NoError(t, err)
	event := parsed.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err, "pack %s", name)
	return types.Log{
		Address:     testUnion,
		Topics:      append([]common.Hash{event.ID}, topics...),
		Data:        data,
		BlockNumber: block,
		TxIndex:     tx,
		Index:       index,
	}
}

func newTestRunner(t *testing.T, cfg RunConfig, source LogSource, led *ledger.Ledger, cp Checkpointer, sink *errSink) *Runner {
	t.Helper()
	factoryDecoder, err := decode.NewFactoryDecoder(decode.Config{Factory: testFactory})
	require.NoError(t, err)
	unionDecoder, err := decode.NewUnionDecoder(decode.Config{})
	require.NoError(t, err)
	return NewRunner(cfg, Deps{
		Source:         source,
		FactoryDecoder: factoryDecoder,
		UnionDecoder:   unionDecoder,
		Ledger:         led,
		Checkpoint:     cp,
		Errors:         sink,
	})
}

func requireRevenue(t *testing.T, u model.Union, want int64) {
	t.Helper()
	require.Zero(t, u.RevenueWei.Cmp(big.NewInt(want)), "revenue: got %s want %d", u.RevenueWei, want)
}

func TestRunnerDiscoversUnionsFromFactory(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{latest: 100, logs: []types.Log{
		createdLog(t, 10, 0, 0),
		unionLog(t, "MemberJoined", 10, 1, 1, []common.Hash{addressTopic(testMember)}),
		unionLog(t, "RevenueReceived", 25, 0, 0, nil, big.NewInt(500)),
	}}
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	cp := &memCheckpoint{}
	sink := &errSink{}

	runner := newTestRunner(t, RunConfig{FromBlock: 1, ToBlock: 30, Factory: testFactory, BatchSize: 10}, source, led, cp, sink)
	require.NoError(t, runner.Run(ctx))

	u, ok, err := led.Store().Union(ctx, testUnion)
	require.NoError(t, err)
	require.True(t, ok, "union not stored")
	require.Equal(t, testPrimary, u.Primary)
	require.Equal(t, testOwner, u.Owner)
	require.Equal(t, uint64(1), u.MemberCount)
	requireRevenue(t, u, 500)
	require.Equal(t, uint64(30), cp.cp.LastProcessedBlock)
	require.Equal(t, model.EventKey{BlockNumber: 25}, cp.cp.LastEventKey)
	require.Equal(t, 3, cp.saves)
	require.Empty(t, sink.records)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{latest: 100, logs: []types.Log{
		createdLog(t, 10, 0, 0),
		unionLog(t, "RevenueReceived", 25, 0, 0, nil, big.NewInt(500)),
	}}
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	cp := &memCheckpoint{}

	first := newTestRunner(t, RunConfig{FromBlock: 1, ToBlock: 30, Factory: testFactory, BatchSize: 50}, source, led, cp, &errSink{})
	require.NoError(t, first.Run(ctx))

	source.logs = append(source.logs, unionLog(t, "RevenueReceived", 35, 0, 0, nil, big.NewInt(250)))
	second := newTestRunner(t, RunConfig{FromBlock: 1, ToBlock: 40, Factory: testFactory, BatchSize: 50}, source, led, cp, &errSink{})
	require.NoError(t, second.Run(ctx))

	u, _, err := led.Store().Union(ctx, testUnion)
	require.NoError(t, err)
	requireRevenue(t, u, 750)
	require.Equal(t, uint64(40), cp.cp.LastProcessedBlock)
}

func TestRunnerRecordsDecodeErrors(t *testing.T) {
	ctx := context.Background()
	bad := unionLog(t, "RevenueReceived", 12, 0, 0, nil, big.NewInt(1))
	bad.Data = []byte{0x01}
	source := &fakeSource{latest: 20, logs: []types.Log{
		createdLog(t, 10, 0, 0),
		bad,
	}}
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	sink := &errSink{}

	runner := newTestRunner(t, RunConfig{FromBlock: 1, Factory: testFactory, BatchSize: 100}, source, led, &memCheckpoint{}, sink)
	require.NoError(t, runner.Run(ctx))

	require.Len(t, sink.records, 1)
	require.Equal(t, uint64(12), sink.records[0].BlockNumber)
	u, _, _ := led.Store().Union(ctx, testUnion)
	require.Zero(t, u.RevenueWei.Sign(), "bad log should not count revenue")
}

func TestRunnerRequiresEmitters(t *testing.T) {
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	runner := newTestRunner(t, RunConfig{BatchSize: 10}, &fakeSource{}, led, &memCheckpoint{}, &errSink{})
	require.Error(t, runner.Run(context.Background()), "no factory or unions configured")
}

func TestRunnerStaysBehindConfirmations(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{latest: 100, logs: []types.Log{
		createdLog(t, 10, 0, 0),
		unionLog(t, "RevenueReceived", 25, 0, 0, nil, big.NewInt(500)),
	}}
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	cp := &memCheckpoint{}

	runner := newTestRunner(t, RunConfig{FromBlock: 1, Factory: testFactory, BatchSize: 100, Confirmations: 80}, source, led, cp, &errSink{})
	require.NoError(t, runner.Run(ctx))

	u, ok, _ := led.Store().Union(ctx, testUnion)
	require.True(t, ok, "union below the safe head should be indexed")
	require.Zero(t, u.RevenueWei.Sign(), "revenue above the safe head applied")
	require.Equal(t, uint64(20), cp.cp.LastProcessedBlock)
}

type fakeReplica struct {
	initialized bool
	owner       common.Address
	primary     common.Address
}

func (f *fakeReplica) Call(_ context.Context, _, to common.Address, input []byte) ([]byte, error) {
	if to != testUnion {
		return nil, fmt.Errorf("no code at %s", to.Hex())
	}
	parsed, err := replica.ABI()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "isInitialized":
		return method.Outputs.Pack(f.initialized)
	case "owner":
		return method.Outputs.Pack(f.owner)
	case "mainnetDataUnion":
		return method.Outputs.Pack(f.primary)
	default:
		return nil, fmt.Errorf("unexpected method %s", method.Name)
	}
}

func unionOnlyLogs(t *testing.T) []types.Log {
	t.Helper()
	return []types.Log{
		unionLog(t, "MemberJoined", 12, 0, 0, []common.Hash{addressTopic(testMember)}),
		unionLog(t, "RevenueReceived", 15, 0, 0, nil, big.NewInt(300)),
	}
}

func TestRunnerBootstrapsConfiguredUnion(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{latest: 20, logs: unionOnlyLogs(t)}
	var rejected []error
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{
		OnReject: func(_ model.Event, err error) { rejected = append(rejected, err) },
	})

	runner := newTestRunner(t, RunConfig{FromBlock: 10, Unions: []common.Address{testUnion}, BatchSize: 100}, source, led, &memCheckpoint{}, &errSink{})
	runner.deps.Contracts = &fakeReplica{initialized: true, owner: testOwner, primary: testPrimary}
	require.NoError(t, runner.Run(ctx))

	require.Empty(t, rejected)
	u, ok, err := led.Store().Union(ctx, testUnion)
	require.NoError(t, err)
	require.True(t, ok, "union not bootstrapped")
	require.Equal(t, testOwner, u.Owner)
	require.Equal(t, testPrimary, u.Primary)
	require.Equal(t, uint64(1_700_006_400+10*5), u.CreatedAt)
	require.Equal(t, uint64(1), u.MemberCount)
	requireRevenue(t, u, 300)
}

func TestRunnerRefusesUnknownUnionWithoutReader(t *testing.T) {
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	runner := newTestRunner(t, RunConfig{FromBlock: 10, Unions: []common.Address{testUnion}, BatchSize: 100},
		&fakeSource{latest: 20, logs: unionOnlyLogs(t)}, led, &memCheckpoint{}, &errSink{})
	require.Error(t, runner.Run(context.Background()), "union cannot be bootstrapped")

	_, ok, _ := led.Store().Union(context.Background(), testUnion)
	require.False(t, ok, "union must not be created")
}

func TestRunnerRefusesUninitializedReplica(t *testing.T) {
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	runner := newTestRunner(t, RunConfig{FromBlock: 10, Unions: []common.Address{testUnion}, BatchSize: 100},
		&fakeSource{latest: 20}, led, &memCheckpoint{}, &errSink{})
	runner.deps.Contracts = &fakeReplica{}
	require.Error(t, runner.Run(context.Background()))
}

func TestRunnerSkipsBootstrapForStoredUnion(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	_, err := led.Apply(ctx, model.UnionCreated{
		EventMeta: model.EventMeta{Union: testUnion, Key: model.EventKey{BlockNumber: 5}},
		Owner:     testOwner,
	})
	require.NoError(t, err)

	runner := newTestRunner(t, RunConfig{FromBlock: 10, Unions: []common.Address{testUnion}, BatchSize: 100},
		&fakeSource{latest: 20, logs: unionOnlyLogs(t)}, led, &memCheckpoint{}, &errSink{})
	require.NoError(t, runner.Run(ctx))

	u, _, _ := led.Store().Union(ctx, testUnion)
	require.Equal(t, uint64(1), u.MemberCount)
	requireRevenue(t, u, 300)
}

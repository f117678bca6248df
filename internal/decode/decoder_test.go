package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dataunion/internal/model"
)

var (
	unionAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	memberAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	factoryAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newDecoders(t *testing.T, cfg Config) (*FactoryDecoder, *UnionDecoder) {
	t.Helper()
	factory, union, err := NewPair(cfg)
	require.NoError(t, err)
	return factory, union
}

func TestDecodeMemberWeightChanged(t *testing.T) {
	parsed, err := UnionABI()
	require.NoError(t, err)
	_, set := newDecoders(t, Config{})

	oneAndHalf := WeightToChain(decimal.RequireFromString("1.5"))
	data, err := parsed.Events["MemberWeightChanged"].Inputs.NonIndexed().Pack(big.NewInt(0), oneAndHalf)
	require.NoError(t, err)

	record := buildLogRecord(unionAddr, parsed.Events["MemberWeightChanged"].ID, data, []common.Hash{topicFromAddress(memberAddr)})
	event, err := set.Decode(record)
	require.NoError(t, err)

	changed, ok := event.(model.MemberWeightChanged)
	require.True(t, ok, "decoded type %T", event)
	require.Equal(t, memberAddr, changed.Member)
	require.Equal(t, unionAddr, changed.Union)
	require.True(t, changed.OldWeight.IsZero(), "old weight %s", changed.OldWeight)
	require.True(t, changed.NewWeight.Equal(decimal.RequireFromString("1.5")), "new weight %s", changed.NewWeight)
	require.Equal(t, model.EventKey{BlockNumber: 12345, TxIndex: 3, LogIndex: 1}, changed.Key)
	require.Equal(t, uint64(1700000000), changed.Timestamp)
}

func TestDecodeRevenueAndMembership(t *testing.T) {
	parsed, _ := UnionABI()
	_, set := newDecoders(t, Config{})

	amount, _ := new(big.Int).SetString("123000000000000000000", 10)
	data, err := parsed.Events["RevenueReceived"].Inputs.NonIndexed().Pack(amount)
	require.NoError(t, err)
	event, err := set.Decode(buildLogRecord(unionAddr, parsed.Events["RevenueReceived"].ID, data, nil))
	require.NoError(t, err)
	revenue, ok := event.(model.RevenueReceived)
	require.True(t, ok, "decoded type %T", event)
	require.Zero(t, revenue.AmountWei.Cmp(amount), "amount %s", revenue.AmountWei)

	event, err = set.Decode(buildLogRecord(unionAddr, parsed.Events["MemberJoined"].ID, nil, []common.Hash{topicFromAddress(memberAddr)}))
	require.NoError(t, err)
	joined, ok := event.(model.MemberJoined)
	require.True(t, ok, "decoded type %T", event)
	require.Equal(t, memberAddr, joined.Member)

	data, _ = parsed.Events["MemberParted"].Inputs.NonIndexed().Pack(uint8(2))
	event, err = set.Decode(buildLogRecord(unionAddr, parsed.Events["MemberParted"].ID, data, []common.Hash{topicFromAddress(memberAddr)}))
	require.NoError(t, err)
	parted, ok := event.(model.MemberParted)
	require.True(t, ok, "decoded type %T", event)
	require.Equal(t, uint8(2), parted.LeaveCondition)
}

func TestDecodeOwnershipTransferred(t *testing.T) {
	parsed, _ := UnionABI()
	_, set := newDecoders(t, Config{})
	next := common.HexToAddress("0x4444444444444444444444444444444444444444")

	event, err := set.Decode(buildLogRecord(unionAddr, parsed.Events["OwnershipTransferred"].ID, nil, []common.Hash{
		topicFromAddress(memberAddr),
		topicFromAddress(next),
	}))
	require.NoError(t, err)
	transferred, ok := event.(model.OwnershipTransferred)
	require.True(t, ok, "decoded type %T", event)
	require.Equal(t, memberAddr, transferred.PreviousOwner)
	require.Equal(t, next, transferred.NewOwner)
}

func TestDecodeUnionCreated(t *testing.T) {
	parsed, _ := FactoryABI()
	set, _ := newDecoders(t, Config{Factory: factoryAddr})

	primary := common.HexToAddress("0x5555555555555555555555555555555555555555")
	owner := common.HexToAddress("0x6666666666666666666666666666666666666666")
	template := common.HexToAddress("0x7777777777777777777777777777777777777777")

	data, err := parsed.Events[unionCreatedEvent].Inputs.NonIndexed().Pack(template)
	require.NoError(t, err)
	topics := []common.Hash{topicFromAddress(primary), topicFromAddress(unionAddr), topicFromAddress(owner)}

	event, err := set.Decode(buildLogRecord(factoryAddr, parsed.Events[unionCreatedEvent].ID, data, topics))
	require.NoError(t, err)
	created, ok := event.(model.UnionCreated)
	require.True(t, ok, "decoded type %T", event)
	require.Equal(t, unionAddr, created.Union)
	require.Equal(t, primary, created.Primary)
	require.Equal(t, owner, created.Owner)
	require.Equal(t, template, created.Template)

	_, err = set.Decode(buildLogRecord(unionAddr, parsed.Events[unionCreatedEvent].ID, data, topics))
	require.Error(t, err, "creation event from a non-factory address")
}

func TestDecodeErrors(t *testing.T) {
	parsed, _ := UnionABI()
	_, set := newDecoders(t, Config{})

	require.False(t, set.CanDecode("0x"+common.Bytes2Hex(make([]byte, 32))), "unexpected topic accepted")

	record := buildLogRecord(unionAddr, parsed.Events["MemberJoined"].ID, nil, nil)
	_, err := set.Decode(record)
	require.Error(t, err, "missing indexed topic")

	record = buildLogRecord(unionAddr, parsed.Events["MemberJoined"].ID, nil, []common.Hash{topicFromAddress(memberAddr)})
	record.Removed = true
	_, err = set.Decode(record)
	require.Error(t, err, "removed log")

	errRecord := Failure(record, model.EventMemberJoined, errTest)
	require.Equal(t, record.Topics[0], errRecord.Topic0)
	require.Equal(t, uint64(3), errRecord.TxIndex)
	require.Equal(t, "MemberJoined", errRecord.EventType)
	require.Equal(t, model.FailureDecode, errRecord.Stage)
}

func TestTopic0Map(t *testing.T) {
	alias := "0x" + common.Bytes2Hex(common.LeftPadBytes([]byte{0xaa}, 32))
	factory, union := newDecoders(t, Config{Topic0Map: map[string]string{alias: "revenuereceived"}})
	require.True(t, union.CanDecode(alias), "alias not registered")
	require.False(t, factory.CanDecode(alias), "union alias leaked into the factory decoder")

	_, _, err := NewPair(Config{Topic0Map: map[string]string{alias: "Swap"}})
	require.Error(t, err, "unknown event name")

	require.Len(t, union.Topics(), 6)
	require.Len(t, factory.Topics(), 1)
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")

func buildLogRecord(addr common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     100,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		TxIndex:     3,
		LogIndex:    1,
		Address:     addr.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

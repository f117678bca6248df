package stream

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"dataunion/internal/ledger"
	"dataunion/internal/model"
)

var (
	unionA = common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	member = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

type queueReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *queueReader) Close() error { return nil }

type failingApplier struct{}

func (failingApplier) Apply(context.Context, model.Event) (ledger.Result, error) {
	return 0, errors.New("store down")
}

func testEvents() []model.Event {
	meta := func(block uint64) model.EventMeta {
		return model.EventMeta{Key: model.EventKey{BlockNumber: block}, Union: unionA, Timestamp: 1_700_006_400 + block}
	}
	return []model.Event{
		model.UnionCreated{EventMeta: meta(1), Owner: member},
		model.MemberJoined{EventMeta: meta(2), Member: member},
		model.RevenueReceived{EventMeta: meta(3), AmountWei: big.NewInt(42)},
	}
}

func toMessages(t *testing.T, events []model.Event) []kafka.Message {
	t.Helper()
	w := &captureWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil).Publish(context.Background(), events))
	for i := range w.msgs {
		w.msgs[i].Offset = int64(i)
	}
	return w.msgs
}

func TestEncodeMessageKeysByUnion(t *testing.T) {
	ev := testEvents()[1]
	msg, err := EncodeMessage(ev)
	require.NoError(t, err)

	require.Equal(t, strings.ToLower(unionA.Hex()), string(msg.Key))
	require.Equal(t, eventTypeHeader, msg.Headers[0].Key)
	require.Equal(t, string(model.EventMemberJoined), string(msg.Headers[0].Value))
	require.Equal(t, int64(1_700_006_402), msg.Time.Unix())

	decoded, err := model.DecodeEvent(msg.Value)
	require.NoError(t, err)
	require.Equal(t, ev, decoded)
}

func TestPublishKeepsOrder(t *testing.T) {
	msgs := toMessages(t, testEvents())
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		ev, err := model.DecodeEvent(msg.Value)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), ev.Meta().Key.BlockNumber)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	p := NewProducerWithWriter(&captureWriter{err: errors.New("broker gone")}, nil)
	err := p.Publish(context.Background(), testEvents())
	require.ErrorContains(t, err, "broker gone")
	require.NoError(t, p.Publish(context.Background(), nil))
}

func TestConsumerAppliesAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := toMessages(t, testEvents())
	// a replayed message and a malformed one
	msgs = append(msgs, msgs[2], kafka.Message{Offset: 99, Value: []byte("{")})
	msgs[3].Offset = 3
	reader := &queueReader{msgs: msgs, cancel: cancel}

	led := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	require.NoError(t, NewConsumerWithReader(reader, led, nil, nil).Run(ctx))

	require.Equal(t, []int64{0, 1, 2, 3, 99}, reader.committed)
	u, ok, err := led.Store().Union(context.Background(), unionA)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), u.MemberCount)
	require.Equal(t, int64(42), u.RevenueWei.Int64())
}

func TestConsumerStopsOnStoreError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &queueReader{msgs: toMessages(t, testEvents()), cancel: cancel}
	err := NewConsumerWithReader(reader, failingApplier{}, nil, nil).Run(ctx)
	require.ErrorContains(t, err, "store down")
	require.Empty(t, reader.committed)
}

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer(Config{Topic: "events"}, nil)
	require.Error(t, err)
	_, err = NewConsumer(Config{Brokers: []string{"localhost:9092"}, Topic: "events"}, nil, nil, nil)
	require.ErrorContains(t, err, "consumer group")
}

package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dataunion/internal/ledger"
	"dataunion/internal/model"
)

// Reader is the subset of kafka.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Applier applies one event to the ledger.
type Applier interface {
	Apply(ctx context.Context, ev model.Event) (ledger.Result, error)
}

// Observer records consumed messages.
type Observer interface {
	ObserveMessage(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveMessage(error) {}

// Consumer reads events from Kafka and applies them to the ledger.
// A message is committed only after its event is durably handled.
type Consumer struct {
	reader  Reader
	applier Applier
	metrics Observer
	logger  *zap.Logger
}

func NewConsumer(cfg Config, applier Applier, metrics Observer, logger *zap.Logger) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return NewConsumerWithReader(reader, applier, metrics, logger), nil
}

func NewConsumerWithReader(reader Reader, applier Applier, metrics Observer, logger *zap.Logger) *Consumer {
	if metrics == nil {
		metrics = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, applier: applier, metrics: metrics, logger: logger.Named("consumer")}
}

// Run consumes until ctx ends. Store failures stop the loop without committing, so the message is redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			c.metrics.ObserveMessage(err)
			return err
		}
		c.metrics.ObserveMessage(nil)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ev, err := model.DecodeEvent(msg.Value)
	if err != nil {
		c.logger.Error("malformed message, skipped",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("key", msg.Key),
			zap.Error(err),
		)
		return nil
	}

	result, err := c.applier.Apply(ctx, ev)
	if err != nil {
		return err
	}
	c.logger.Debug("event consumed",
		zap.String("type", string(ev.Type())),
		zap.String("key", ev.Meta().Key.String()),
		zap.String("result", result.String()),
		zap.Int64("offset", msg.Offset),
	)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

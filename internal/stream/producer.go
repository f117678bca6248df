// Package stream moves decoded ledger events through Kafka so several consumers can rebuild the ledger.
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dataunion/internal/model"
)

const eventTypeHeader = "event_type"

// Config holds Kafka connection settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	return nil
}

// Writer is the subset of kafka.Writer used by Producer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events keyed by union so each union lands on one partition in key order.
type Producer struct {
	writer Writer
	logger *zap.Logger
}

// NewProducer dials nothing up front; kafka.Writer connects lazily on the first write.
func NewProducer(cfg Config, logger *zap.Logger) (*Producer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, logger), nil
}

func NewProducerWithWriter(w Writer, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: w, logger: logger.Named("producer")}
}

// Publish writes events in the given order as one batch.
func (p *Producer) Publish(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := EncodeMessage(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	p.logger.Debug("published events", zap.Int("count", len(msgs)))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// EncodeMessage wraps an event in its envelope, keyed by the lowercase union address.
func EncodeMessage(ev model.Event) (kafka.Message, error) {
	value, err := model.EncodeEvent(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	meta := ev.Meta()
	return kafka.Message{
		Key:   []byte(strings.ToLower(meta.Union.Hex())),
		Value: value,
		Time:  time.Unix(int64(meta.Timestamp), 0).UTC(),
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(ev.Type())},
		},
	}, nil
}

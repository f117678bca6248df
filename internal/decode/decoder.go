// Package decode turns raw union and factory logs into ledger events.
package decode

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dataunion/internal/model"
)

// Decoder converts one log into an event.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (model.Event, error)
}

// Config configures decoders.
type Config struct {
	// Factory restricts factory events to one emitter. Zero accepts any address.
	Factory common.Address
	// Topic0Map adds topic0 aliases keyed by hash, valued by event name.
	Topic0Map map[string]string
}

// NewPair builds the factory and union decoders. The runner queries each emitter on its own,
// so aliases in cfg.Topic0Map are validated once for both.
func NewPair(cfg Config) (*FactoryDecoder, *UnionDecoder, error) {
	for _, name := range cfg.Topic0Map {
		if normalizeUnionEvent(name) == "" && normalizeFactoryEvent(name) == "" {
			return nil, nil, fmt.Errorf("unsupported event name in topic0 map: %s", name)
		}
	}
	union, err := NewUnionDecoder(cfg)
	if err != nil {
		return nil, nil, err
	}
	factory, err := NewFactoryDecoder(cfg)
	if err != nil {
		return nil, nil, err
	}
	return factory, union, nil
}

// Failure describes a log that failed to decode.
func Failure(log model.LogRecord, eventType model.EventType, err error) model.Failure {
	return model.Failure{
		Stage:       model.FailureDecode,
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventType:   string(eventType),
		Topic0:      log.Topic0(),
		Error:       err.Error(),
	}
}

func metaOf(log model.LogRecord, union common.Address) model.EventMeta {
	return model.EventMeta{
		Key:       log.Key(),
		Union:     union,
		Timestamp: log.Timestamp,
		TxHash:    common.HexToHash(log.TxHash),
	}
}

func emitter(log model.LogRecord) (common.Address, error) {
	if log.Removed {
		return common.Address{}, fmt.Errorf("log removed by reorg")
	}
	if !common.IsHexAddress(log.Address) {
		return common.Address{}, fmt.Errorf("invalid emitter address: %s", log.Address)
	}
	return common.HexToAddress(log.Address), nil
}

// topicIndex adds the aliases whose names normalize to an event of this decoder.
func topicIndex(names map[string]string, aliases map[string]string, normalize func(string) string) error {
	for topic0, name := range aliases {
		name = normalize(name)
		if name == "" || topic0 == "" {
			continue
		}
		if !strings.HasPrefix(topic0, "0x") || len(topic0) != 66 {
			return fmt.Errorf("invalid topic0 in topic0 map: %s", topic0)
		}
		names[strings.ToLower(topic0)] = name
	}
	return nil
}

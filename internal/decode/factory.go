package decode

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"dataunion/internal/model"
)

const unionCreatedEvent = "SidechainDUCreated"

// FactoryDecoder decodes the factory's replica creation event into UnionCreated.
type FactoryDecoder struct {
	factoryABI  abi.ABI
	factory     common.Address
	topicToName map[string]string
}

func NewFactoryDecoder(cfg Config) (*FactoryDecoder, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return nil, err
	}

	topicToName := map[string]string{
		strings.ToLower(parsed.Events[unionCreatedEvent].ID.Hex()): unionCreatedEvent,
	}
	if err := topicIndex(topicToName, cfg.Topic0Map, normalizeFactoryEvent); err != nil {
		return nil, err
	}
	return &FactoryDecoder{factoryABI: parsed, factory: cfg.Factory, topicToName: topicToName}, nil
}

func (d *FactoryDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Topics returns the accepted topic0 hashes.
func (d *FactoryDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

func (d *FactoryDecoder) Decode(log model.LogRecord) (model.Event, error) {
	topic0 := log.Topic0()
	if topic0 == "" {
		return nil, fmt.Errorf("missing topics")
	}
	if _, ok := d.topicToName[strings.ToLower(topic0)]; !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", topic0)
	}
	from, err := emitter(log)
	if err != nil {
		return nil, err
	}
	if d.factory != (common.Address{}) && from != d.factory {
		return nil, fmt.Errorf("creation event from %s, expected factory %s", from.Hex(), d.factory.Hex())
	}

	event := d.factoryABI.Events[unionCreatedEvent]
	var indexed struct {
		Mainnet common.Address
		Sidenet common.Address
		Owner   common.Address
	}
	if err := parseIndexed(&indexed, event, log.Topics); err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data, 1)
	if err != nil {
		return nil, err
	}
	template, err := asAddress(values[0])
	if err != nil {
		return nil, err
	}

	return model.UnionCreated{
		EventMeta: metaOf(log, indexed.Sidenet),
		Primary:   indexed.Mainnet,
		Owner:     indexed.Owner,
		Template:  template,
	}, nil
}

func normalizeFactoryEvent(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sidechainducreated", "unioncreated":
		return unionCreatedEvent
	default:
		return ""
	}
}

package decode

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"dataunion/internal/model"
)

// weightExp scales on-chain member weights, which are fixed point with 18 decimals.
const weightExp = -18

// UnionDecoder decodes events emitted by union contracts.
type UnionDecoder struct {
	unionABI    abi.ABI
	topicToName map[string]string
}

func NewUnionDecoder(cfg Config) (*UnionDecoder, error) {
	parsed, err := UnionABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string)
	for _, name := range []model.EventType{
		model.EventMemberJoined,
		model.EventMemberParted,
		model.EventMemberWeightChanged,
		model.EventRevenueReceived,
		model.EventOwnershipTransferred,
	} {
		topicToName[strings.ToLower(parsed.Events[string(name)].ID.Hex())] = string(name)
	}
	if err := topicIndex(topicToName, cfg.Topic0Map, normalizeUnionEvent); err != nil {
		return nil, err
	}

	return &UnionDecoder{unionABI: parsed, topicToName: topicToName}, nil
}

func (d *UnionDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Topics returns the accepted topic0 hashes.
func (d *UnionDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

func (d *UnionDecoder) Decode(log model.LogRecord) (model.Event, error) {
	topic0 := log.Topic0()
	if topic0 == "" {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(topic0)]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", topic0)
	}
	union, err := emitter(log)
	if err != nil {
		return nil, err
	}
	meta := metaOf(log, union)
	event := d.unionABI.Events[name]

	switch model.EventType(name) {
	case model.EventMemberJoined:
		var indexed struct{ Member common.Address }
		if err := parseIndexed(&indexed, event, log.Topics); err != nil {
			return nil, err
		}
		return model.MemberJoined{EventMeta: meta, Member: indexed.Member}, nil

	case model.EventMemberParted:
		var indexed struct{ Member common.Address }
		if err := parseIndexed(&indexed, event, log.Topics); err != nil {
			return nil, err
		}
		values, err := unpackNonIndexed(event, log.Data, 1)
		if err != nil {
			return nil, err
		}
		code, err := asUint8(values[0])
		if err != nil {
			return nil, err
		}
		return model.MemberParted{EventMeta: meta, Member: indexed.Member, LeaveCondition: code}, nil

	case model.EventMemberWeightChanged:
		var indexed struct{ Member common.Address }
		if err := parseIndexed(&indexed, event, log.Topics); err != nil {
			return nil, err
		}
		values, err := unpackNonIndexed(event, log.Data, 2)
		if err != nil {
			return nil, err
		}
		oldWeight, err := asBigInt(values[0])
		if err != nil {
			return nil, err
		}
		newWeight, err := asBigInt(values[1])
		if err != nil {
			return nil, err
		}
		return model.MemberWeightChanged{
			EventMeta: meta,
			Member:    indexed.Member,
			OldWeight: decimal.NewFromBigInt(oldWeight, weightExp),
			NewWeight: decimal.NewFromBigInt(newWeight, weightExp),
		}, nil

	case model.EventRevenueReceived:
		values, err := unpackNonIndexed(event, log.Data, 1)
		if err != nil {
			return nil, err
		}
		amount, err := asBigInt(values[0])
		if err != nil {
			return nil, err
		}
		return model.RevenueReceived{EventMeta: meta, AmountWei: amount}, nil

	case model.EventOwnershipTransferred:
		var indexed struct {
			PreviousOwner common.Address
			NewOwner      common.Address
		}
		if err := parseIndexed(&indexed, event, log.Topics); err != nil {
			return nil, err
		}
		return model.OwnershipTransferred{
			EventMeta:     meta,
			PreviousOwner: indexed.PreviousOwner,
			NewOwner:      indexed.NewOwner,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func normalizeUnionEvent(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "memberjoined":
		return string(model.EventMemberJoined)
	case "memberparted":
		return string(model.EventMemberParted)
	case "memberweightchanged":
		return string(model.EventMemberWeightChanged)
	case "revenuereceived":
		return string(model.EventRevenueReceived)
	case "ownershiptransferred":
		return string(model.EventOwnershipTransferred)
	default:
		return ""
	}
}

// WeightToChain converts a decimal weight to its on-chain fixed point form.
func WeightToChain(w decimal.Decimal) *big.Int {
	return w.Shift(-weightExp).BigInt()
}

package model

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of an Event: a type tag plus the variant payload.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent marshals an event into its envelope form.
func EncodeEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{Type: ev.Type(), Payload: payload})
}

// DecodeEvent unmarshals an envelope into the matching event variant.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case EventUnionCreated:
		return decodePayload[UnionCreated](env)
	case EventMemberJoined:
		return decodePayload[MemberJoined](env)
	case EventMemberParted:
		return decodePayload[MemberParted](env)
	case EventMemberWeightChanged:
		return decodePayload[MemberWeightChanged](env)
	case EventRevenueReceived:
		return decodePayload[RevenueReceived](env)
	case EventOwnershipTransferred:
		return decodePayload[OwnershipTransferred](env)
	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

func decodePayload[T Event](env Envelope) (Event, error) {
	var ev T
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return ev, nil
}

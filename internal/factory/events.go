package factory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EventKind names a provenance event.
type EventKind string

const (
	ReplicaCreated   EventKind = "ReplicaCreated"
	ReplicaFunded    EventKind = "ReplicaFunded"
	OwnerFunded      EventKind = "OwnerFunded"
	ParameterChanged EventKind = "ParameterChanged"
)

// Event is one provenance record emitted by the factory. Fields unused by a kind are zero.
type Event struct {
	Kind      EventKind
	Primary   common.Address
	Replica   common.Address
	Owner     common.Address
	Template  common.Address
	Recipient common.Address
	Amount    *big.Int
	Parameter Parameter
	OldValue  *big.Int
	NewValue  *big.Int
}

// Emitter receives provenance events.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// LogEmitter writes events to a logger.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, ev Event) {
	fields := []zap.Field{zap.String("kind", string(ev.Kind))}
	switch ev.Kind {
	case ReplicaCreated:
		fields = append(fields,
			zap.String("primary", ev.Primary.Hex()),
			zap.String("replica", ev.Replica.Hex()),
			zap.String("owner", ev.Owner.Hex()),
			zap.String("template", ev.Template.Hex()),
		)
	case ReplicaFunded, OwnerFunded:
		fields = append(fields,
			zap.String("recipient", ev.Recipient.Hex()),
			zap.String("amount", bigString(ev.Amount)),
		)
	case ParameterChanged:
		fields = append(fields,
			zap.String("parameter", string(ev.Parameter)),
			zap.String("old", bigString(ev.OldValue)),
			zap.String("new", bigString(ev.NewValue)),
		)
	}
	e.logger.Info("factory event", fields...)
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of recorded events in emission order.
func (r *Recorder) Kinds() []EventKind {
	events := r.Events()
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, ev Event) {
	for _, e := range m {
		e.Emit(ctx, ev)
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

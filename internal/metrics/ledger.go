package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "events_total",
		Help:      "Count of events handled by the ledger by type and result.",
	}, []string{"event_type", "result"})

	applyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "apply_duration_seconds",
		Help:      "Duration of applying one event.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"event_type"})

	integrityErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "integrity_errors_total",
		Help:      "Count of events rejected as data-integrity errors.",
	}, []string{"event_type", "reason"})
)

// Ledger records event application outcomes.
type Ledger struct{}

func NewLedger() Ledger {
	return Ledger{}
}

// ObserveEvent records one handled event.
func (Ledger) ObserveEvent(eventType, result string, started time.Time) {
	eventsTotal.WithLabelValues(eventType, result).Inc()
	applyDuration.WithLabelValues(eventType).Observe(time.Since(started).Seconds())
}

// ObserveIntegrityError records one rejected event.
func (Ledger) ObserveIntegrityError(eventType, reason string) {
	integrityErrorsTotal.WithLabelValues(eventType, reason).Inc()
}

// Package metrics exposes Prometheus collectors for provisioning and ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dataunion"

var (
	provisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "factory",
		Name:      "provision_total",
		Help:      "Count of replica provisioning requests by outcome.",
	}, []string{"status"})

	provisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "factory",
		Name:      "provision_duration_seconds",
		Help:      "Duration of replica provisioning requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	fundingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "factory",
		Name:      "funding_total",
		Help:      "Count of best-effort funding transfers by recipient and outcome.",
	}, []string{"recipient", "status"})
)

// Factory records provisioning outcomes.
type Factory struct{}

func NewFactory() Factory {
	return Factory{}
}

// ObserveProvision records one provisioning request.
func (Factory) ObserveProvision(status string, started time.Time) {
	provisionTotal.WithLabelValues(status).Inc()
	provisionDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// ObserveFunding records one funding attempt.
func (Factory) ObserveFunding(recipient, status string) {
	fundingTotal.WithLabelValues(recipient, status).Inc()
}

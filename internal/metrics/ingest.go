package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "batch_total",
		Help:      "Count of block-range batches processed.",
	}, []string{"status"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "batch_duration_seconds",
		Help:      "Duration of processing a block-range batch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	batchLogs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "batch_logs",
		Help:      "Number of logs fetched per batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	checkpointBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "checkpoint_block",
		Help:      "Block number of the last durably applied event.",
	})

	consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Count of stream messages consumed by outcome.",
	}, []string{"status"})
)

// Indexer records batch progress.
type Indexer struct{}

func NewIndexer() Indexer {
	return Indexer{}
}

// ObserveBatch records processing of one block range.
func (Indexer) ObserveBatch(err error, logs int, started time.Time) {
	status := statusOf(err)
	batchTotal.WithLabelValues(status).Inc()
	batchDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	if err == nil {
		batchLogs.Observe(float64(logs))
	}
}

// SetCheckpoint publishes the checkpoint block.
func (Indexer) SetCheckpoint(block uint64) {
	checkpointBlock.Set(float64(block))
}

// Consumer records stream consumption.
type Consumer struct{}

func NewConsumer() Consumer {
	return Consumer{}
}

// ObserveMessage records one consumed message.
func (Consumer) ObserveMessage(err error) {
	consumedTotal.WithLabelValues(statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

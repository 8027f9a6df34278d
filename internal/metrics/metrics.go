package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "txn_webhook"

// Metrics groups the collectors shared by the ingestion and completion paths
type Metrics struct {
	StoreFailures      *prometheus.CounterVec
	StatusUpdates      *prometheus.CounterVec
	Ingestions         *prometheus.CounterVec
	Completions        *prometheus.CounterVec
	SweepRequeued      prometheus.Counter
	QueueDepth         prometheus.Gauge
	IngestDuration     prometheus.Histogram
	CompletionDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Store calls that failed or timed out, by operation and reason.",
		}, []string{"operation", "reason"}),
		StatusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_update_attempts_total",
			Help:      "Status update attempts, by result.",
		}, []string{"result"}),
		Ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Webhook submissions, by outcome.",
		}, []string{"outcome"}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Background completion runs, by result.",
		}, []string{"result"}),
		SweepRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_requeued_total",
			Help:      "Stuck transactions re-enqueued by the retry sweep.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "completion_queue_depth",
			Help:      "Transactions waiting for a completion worker.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent acknowledging a webhook.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		CompletionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Time spent completing a transaction in the background.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	reg.MustRegister(
		m.StoreFailures,
		m.StatusUpdates,
		m.Ingestions,
		m.Completions,
		m.SweepRequeued,
		m.QueueDepth,
		m.IngestDuration,
		m.CompletionDuration,
	)
	return m
}

// NewUnregistered is used by tests and tools that never expose metrics
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

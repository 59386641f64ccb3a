package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox worker.
type Metrics struct {
	PendingDepth    prometheus.Gauge
	PublishedTotal  prometheus.Counter
	PublishFailures prometheus.Counter
	PublishDuration prometheus.Histogram
	BatchSize       prometheus.Histogram
	PollDuration    prometheus.Histogram
}

// New registers the outbox metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		PendingDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "credlife_outbox_pending_total",
			Help: "Current number of unpublished outbox entries",
		}),
		PublishedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlife_outbox_published_total",
			Help: "Total number of outbox entries published to Kafka",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlife_outbox_publish_failures_total",
			Help: "Total number of outbox publish failures",
		}),
		PublishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credlife_outbox_publish_duration_seconds",
			Help:    "Time taken to publish an outbox entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credlife_outbox_batch_size",
			Help:    "Number of entries fetched per poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credlife_outbox_poll_duration_seconds",
			Help:    "Time taken for each poll cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) SetPendingDepth(count int64) { m.PendingDepth.Set(float64(count)) }

func (m *Metrics) IncPublished() { m.PublishedTotal.Inc() }

func (m *Metrics) IncPublishFailures() { m.PublishFailures.Inc() }

func (m *Metrics) ObservePublishDuration(seconds float64) { m.PublishDuration.Observe(seconds) }

func (m *Metrics) ObserveBatchSize(n int) { m.BatchSize.Observe(float64(n)) }

func (m *Metrics) ObservePollDuration(seconds float64) { m.PollDuration.Observe(seconds) }

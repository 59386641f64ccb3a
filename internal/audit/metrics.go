package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit recorder.
type Metrics struct {
	Recorded        prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlife_audit_entries_recorded_total",
			Help: "Total number of audit entries persisted",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlife_audit_persist_failures_total",
			Help: "Total number of audit entries that could not be persisted",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credlife_audit_persist_duration_seconds",
			Help:    "Time taken to persist an audit entry",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

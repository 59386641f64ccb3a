package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for credential lifecycle operations.
type Metrics struct {
	Submissions       *prometheus.CounterVec
	Reviews           *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	RejectedRequests  *prometheus.CounterVec
	ConcurrentRetries prometheus.Counter
	DeliveryFailures  *prometheus.CounterVec
	StatusCache       *prometheus.CounterVec
	OverallStatus     *prometheus.CounterVec

	ScanDuration prometheus.Histogram
	ScanExpired  prometheus.Counter
	ScanExpiring prometheus.Counter
	ScanFailures prometheus.Counter

	OperationLatency *prometheus.HistogramVec
}

// New registers collectors with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers collectors with reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credlife_credential_submissions_total",
			Help: "Credentials accepted for review, labeled by owner kind and credential kind",
		}, []string{"owner_kind", "kind"}),
		Reviews: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credlife_credential_reviews_total",
			Help: "Reviewer decisions applied, labeled by decision",
		}, []string{"decision"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credlife_credential_transitions_total",
			Help: "Persisted status transitions",
		}, []string{"from", "to"}),
		RejectedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credlife_credential_rejected_requests_total",
			Help: "Operations refused by the lifecycle rules, labeled by error code",
		}, []string{"operation", "code"}),
		ConcurrentRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "credlife_credential_concurrent_retries_total",
			Help: "Updates retried after a version conflict",
		}),
		DeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credlife_credential_delivery_failures_total",
			Help: "Audit or notification deliveries that failed after a committed transition",
		}, []string{"target"}),
		StatusCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credlife_status_cache_requests_total",
			Help: "Verification status cache lookups, labeled by result",
		}, []string{"result"}),
		OverallStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credlife_owner_status_computed_total",
			Help: "Owner status computations, labeled by resulting overall status",
		}, []string{"status"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credlife_expiry_scan_duration_seconds",
			Help:    "Duration of expiry scans",
			Buckets: prometheus.DefBuckets,
		}),
		ScanExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "credlife_expiry_scan_expired_total",
			Help: "Credentials moved to expired by the scanner",
		}),
		ScanExpiring: f.NewCounter(prometheus.CounterOpts{
			Name: "credlife_expiry_scan_expiring_total",
			Help: "Credentials reported as expiring soon",
		}),
		ScanFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "credlife_expiry_scan_failures_total",
			Help: "Per-credential failures collected during scans",
		}),
		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credlife_credential_operation_latency_seconds",
			Help:    "Latency of credential service operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveLatency(operation string, start time.Time) {
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncSubmission(ownerKind, kind string) {
	m.Submissions.WithLabelValues(ownerKind, kind).Inc()
}

func (m *Metrics) IncReview(decision string) {
	m.Reviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncRejected(operation, code string) {
	m.RejectedRequests.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) IncDeliveryFailure(target string) {
	m.DeliveryFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) IncCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.StatusCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncOverallStatus(status string) {
	m.OverallStatus.WithLabelValues(status).Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics tracks gift request transitions and their transactions.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	txRetries   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewLifecycleMetrics registers the lifecycle metrics on reg. A nil registerer
// yields a no-op recorder.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brindes_request_transitions_total",
		Help: "Lifecycle operations by outcome code.",
	}, []string{"operation", "outcome"})
	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brindes_tx_retries_total",
		Help: "Transactions re-run after a conflict.",
	}, []string{"operation"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "brindes_request_operation_seconds",
		Help:    "Wall time of lifecycle operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(transitions, txRetries, duration)
	return &LifecycleMetrics{transitions: transitions, txRetries: txRetries, duration: duration}
}

// Observe records one finished operation; outcome is "ok" or an error code.
func (m *LifecycleMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(elapsed.Seconds())
}

// IncRetry counts a conflict retry of operation.
func (m *LifecycleMetrics) IncRetry(operation string) {
	if m == nil || m.txRetries == nil {
		return
	}
	m.txRetries.WithLabelValues(normalizeLabel(operation)).Inc()
}

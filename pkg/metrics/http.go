package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics counts API responses by route pattern rather than raw path so
// request ids do not explode label cardinality.
type HTTPMetrics struct {
	responses *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	panics    prometheus.Counter
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	responses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brindes_http_responses_total",
		Help: "API responses by route and status.",
	}, []string{"method", "route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "brindes_http_request_seconds",
		Help:    "API request latency by route.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})
	panics := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brindes_http_panics_total",
		Help: "Handler panics recovered by the API.",
	})
	reg.MustRegister(responses, latency, panics)
	return &HTTPMetrics{responses: responses, latency: latency, panics: panics}
}

func (m *HTTPMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	if m == nil || m.responses == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.responses.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *HTTPMetrics) IncPanic() {
	if m == nil || m.panics == nil {
		return
	}
	m.panics.Inc()
}

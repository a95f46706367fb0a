package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// ModuleMetrics returns the lazily-initialised metrics registry used to
// record JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lyxmarket",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lyxmarket",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lyxmarket",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(moduleRegistry.requests, moduleRegistry.errors, moduleRegistry.latency)
	})
	return moduleRegistry
}

// ObserveRequest records the outcome and latency of one RPC method call. A
// zero code marks success.
func (m *moduleMetrics) ObserveRequest(method string, code int, start time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

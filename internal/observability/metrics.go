package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	providersConnected prometheus.Gauge

	toolInvocationTotal    *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec

	turnTotal    *prometheus.CounterVec
	turnDuration prometheus.Histogram

	generationTotal    *prometheus.CounterVec
	generationDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			providersConnected: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "providers_connected",
					Help: "Current count of connected tool providers.",
				},
			),
			toolInvocationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_invocation_total",
					Help: "Total tool invocations by provider and status.",
				},
				[]string{"provider", "status"},
			),
			toolInvocationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_invocation_duration_seconds",
					Help:    "Tool invocation duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_turn_total",
					Help: "Total chat turns by status.",
				},
				[]string{"status"},
			),
			turnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chat_turn_duration_seconds",
					Help:    "End-to-end chat turn duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			generationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "generation_request_total",
					Help: "Total generation backend requests by status.",
				},
				[]string{"status"},
			),
			generationDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "generation_request_duration_seconds",
					Help:    "Generation backend request duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			m.providersConnected,
			m.toolInvocationTotal,
			m.toolInvocationDuration,
			m.turnTotal,
			m.turnDuration,
			m.generationTotal,
			m.generationDuration,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration; safe to call repeatedly
func EnsureRegistered() {
	getMetrics()
}

// SetProvidersConnected updates the connected provider gauge
func SetProvidersConnected(n int) {
	getMetrics().providersConnected.Set(float64(n))
}

// RecordToolInvocation records one tool invocation outcome
func RecordToolInvocation(provider, status string, d time.Duration) {
	m := getMetrics()
	m.toolInvocationTotal.WithLabelValues(provider, status).Inc()
	m.toolInvocationDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordTurn records one completed chat turn
func RecordTurn(status string, d time.Duration) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(status).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// RecordGeneration records one generation backend request
func RecordGeneration(status string, d time.Duration) {
	m := getMetrics()
	m.generationTotal.WithLabelValues(status).Inc()
	m.generationDuration.Observe(d.Seconds())
}

// MetricsHandler returns the HTTP handler serving the metrics endpoint
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the runtime's operational counters in Prometheus format.
// Shape (registry + Config with LatencyBuckets + MustRegister-at-construction)
// is grounded on the teacher's PrometheusExporter.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	updatesHandled  *prometheus.CounterVec
	handlerErrors   prometheus.Counter
	dispatchLatency *prometheus.HistogramVec
	pumpRequests    *prometheus.CounterVec
}

// MetricsConfig configures a Metrics instance.
type MetricsConfig struct {
	// Registry to use; a fresh one is created if nil.
	Registry *prometheus.Registry
	// LatencyBuckets for the dispatch-latency histogram, in seconds.
	LatencyBuckets []float64
}

// DefaultMetricsConfig returns sane latency buckets for handler dispatch,
// which is expected to run from milliseconds up to tens of seconds.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}}
}

// NewMetrics constructs and registers every metric against cfg.Registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultMetricsConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{registry: registry}

	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tgrunner", Subsystem: "engine", Name: "sessions_active",
		Help: "Number of live chat sessions.",
	})
	m.updatesHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgrunner", Subsystem: "engine", Name: "updates_handled_total",
		Help: "Total updates routed to a handler, by kind and status.",
	}, []string{"kind", "status"})
	m.handlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tgrunner", Subsystem: "engine", Name: "handler_errors_total",
		Help: "Total handler faults routed to OnError.",
	})
	m.dispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tgrunner", Subsystem: "engine", Name: "dispatch_latency_seconds",
		Help:    "Time from channel receive to handler return, by kind.",
		Buckets: cfg.LatencyBuckets,
	}, []string{"kind"})
	m.pumpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgrunner", Subsystem: "engine", Name: "pump_requests_total",
		Help: "Total getUpdates requests issued, by outcome.",
	}, []string{"outcome"})

	registry.MustRegister(m.sessionsActive, m.updatesHandled, m.handlerErrors, m.dispatchLatency, m.pumpRequests)
	return m
}

// Registry exposes the underlying Prometheus registry, for admin.Server to
// mount a /metrics handler against.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SetSessionsActive reports the registry's current session count.
func (m *Metrics) SetSessionsActive(n int) { m.sessionsActive.Set(float64(n)) }

// RecordDispatch records one handler invocation's outcome and latency.
func (m *Metrics) RecordDispatch(kind string, latency time.Duration, status string) {
	m.updatesHandled.WithLabelValues(kind, status).Inc()
	m.dispatchLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordHandlerError increments the handler-fault counter.
func (m *Metrics) RecordHandlerError() { m.handlerErrors.Inc() }

// RecordPumpRequest records one getUpdates request's outcome
// ("ok"/"transient_error").
func (m *Metrics) RecordPumpRequest(outcome string) { m.pumpRequests.WithLabelValues(outcome).Inc() }

// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing
// setup shared by the HTTP server, the service layer, and the refresh loop.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "custard"

// Metrics is the set of collectors the application records into. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FetchFailures   *prometheus.CounterVec
	SignalsEmitted  *prometheus.CounterVec
	CacheRequests   *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
	RefreshRuns     *prometheus.CounterVec
	AlertsSent      *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Per-store lookups that failed and fell back to a default.",
		}, []string{"source"}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_emitted_total",
			Help:      "Signals returned to callers by type.",
		}, []string{"type"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reliability_refresh_runs_total",
			Help:      "Reliability refresh runs by outcome.",
		}, []string{"outcome"}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Ops alerts by type and delivery outcome.",
		}, []string{"type", "outcome"}),
	}
	m.registry.MustRegister(
		m.Requests, m.RequestDuration, m.FetchFailures, m.SignalsEmitted,
		m.CacheRequests, m.BreakerState, m.RefreshRuns, m.AlertsSent,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labeled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// FetchFailed counts a per-store lookup that degraded to its default.
func (m *Metrics) FetchFailed(source string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(source).Inc()
}

// SignalEmitted counts one returned signal.
func (m *Metrics) SignalEmitted(signalType string) {
	if m == nil {
		return
	}
	m.SignalsEmitted.WithLabelValues(signalType).Inc()
}

// CacheResult counts a cache hit, miss, or error.
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// SetBreakerState records a breaker's numeric state.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RefreshRun counts a reliability refresh by outcome ("ok" or "error").
func (m *Metrics) RefreshRun(outcome string) {
	if m == nil {
		return
	}
	m.RefreshRuns.WithLabelValues(outcome).Inc()
}

// AlertSent counts an alert delivery attempt.
func (m *Metrics) AlertSent(alertType, outcome string) {
	if m == nil {
		return
	}
	m.AlertsSent.WithLabelValues(alertType, outcome).Inc()
}

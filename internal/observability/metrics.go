package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP server, the auth gate and the reaper.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	authorized      *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	storeBypass     *prometheus.CounterVec
	reaperRows      *prometheus.CounterVec
	reaperRuns      *prometheus.CounterVec
}

// NewMetrics initializes a private registry with the service metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Rendered error responses by route and error code.",
		}, []string{"route", "method", "code"}),
		authorized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_authorized_total",
			Help: "Requests admitted by the auth gate.",
		}, []string{"route", "mode", "degraded"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Requests rejected by the auth gate by rejection kind.",
		}, []string{"route", "kind"}),
		storeBypass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_store_bypass_total",
			Help: "Full-mode requests authorized on claims because the session store failed open.",
		}, []string{"route"}),
		reaperRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_reaper_rows_total",
			Help: "Session rows affected by the reaper.",
		}, []string{"op"}),
		reaperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_reaper_runs_total",
			Help: "Reaper sweeps by outcome.",
		}, []string{"result"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration, m.errorsTotal,
		m.authorized, m.rejections, m.storeBypass,
		m.reaperRows, m.reaperRuns,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts a rendered error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(route, method, code).Inc()
}

// RecordAuthorized counts an admitted request.
func (m *Metrics) RecordAuthorized(route, mode string, degraded bool) {
	if m == nil {
		return
	}
	m.authorized.WithLabelValues(route, mode, strconv.FormatBool(degraded)).Inc()
	if degraded {
		m.storeBypass.WithLabelValues(route).Inc()
	}
}

// RecordRejection counts a gate rejection.
func (m *Metrics) RecordRejection(route, kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(route, kind).Inc()
}

// RecordSweep counts a reaper run and the rows it touched.
func (m *Metrics) RecordSweep(deactivated, deleted int64, failed bool) {
	if m == nil {
		return
	}
	m.reaperRows.WithLabelValues("deactivate").Add(float64(deactivated))
	m.reaperRows.WithLabelValues("delete").Add(float64(deleted))
	result := "ok"
	if failed {
		result = "error"
	}
	m.reaperRuns.WithLabelValues(result).Inc()
}

// RecordSweepSkipped counts a tick where another replica held the reaper lock.
func (m *Metrics) RecordSweepSkipped() {
	if m == nil {
		return
	}
	m.reaperRuns.WithLabelValues("skipped").Inc()
}

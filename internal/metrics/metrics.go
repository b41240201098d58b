// Package metrics exposes Prometheus collectors for the approvals service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service records. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	actions         *prometheus.CounterVec
	conflictRetries prometheus.Counter
	submitted       *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_actions_total",
			Help: "Approval actions by action and outcome.",
		}, []string{"action", "outcome"}),
		conflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvals_conflict_retries_total",
			Help: "Transitions retried after a concurrent update.",
		}),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_requests_submitted_total",
			Help: "Approval requests submitted by request type.",
		}, []string{"request_type"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.actions,
		m.conflictRetries,
		m.submitted,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// ObserveAction counts an act call. outcome is "ok" or an error code.
func (m *Metrics) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) IncConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

func (m *Metrics) IncSubmitted(requestType string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(requestType).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps next, recording RPS, latency and in-flight requests.
// route names the matched route template so ids do not explode cardinality.
func (m *Metrics) Instrument(route func(*http.Request) string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		labels := []string{r.Method, route(r), strconv.Itoa(sw.code)}
		m.httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(labels...).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

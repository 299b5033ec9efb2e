package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the core and the ops server.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	posted          *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
	auditEvicted    prometheus.Counter
}

// NewMetrics initialises the registry and the core collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hera_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hera_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hera_transactions_posted_total",
		Help: "Transactions posted by transaction type.",
	}, []string{"type"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hera_posting_rejections_total",
		Help: "Rejected postings by error kind.",
	}, []string{"kind"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hera_reconcile_total",
		Help: "Reconcile runs by outcome.",
	}, []string{"balanced"})
	evicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hera_audit_buffer_evictions_total",
		Help: "Audit events dropped from the in-memory buffer.",
	})
	registry.MustRegister(requests, duration, posted, rejected, reconciled, evicted)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		posted:          posted,
		rejected:        rejected,
		reconciled:      reconciled,
		auditEvicted:    evicted,
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// TransactionPosted counts a successful posting.
func (m *Metrics) TransactionPosted(transactionType string) {
	if m == nil {
		return
	}
	m.posted.WithLabelValues(transactionType).Inc()
}

// PostingRejected counts a failed posting by error kind.
func (m *Metrics) PostingRejected(kind string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(kind).Inc()
}

// Reconciled counts a reconcile run.
func (m *Metrics) Reconciled(balanced bool) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(strconv.FormatBool(balanced)).Inc()
}

// AuditEvicted counts an audit buffer eviction.
func (m *Metrics) AuditEvicted() {
	if m == nil {
		return
	}
	m.auditEvicted.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsRecordsCoreEvents(t *testing.T) {
	metrics := NewMetrics()
	metrics.TransactionPosted("service_sale")
	metrics.TransactionPosted("service_sale")
	metrics.PostingRejected("TotalMismatch")
	metrics.Reconciled(false)
	metrics.AuditEvicted()

	body := scrape(t, metrics)
	assert.Contains(t, body, `hera_transactions_posted_total{type="service_sale"} 2`)
	assert.Contains(t, body, `hera_posting_rejections_total{kind="TotalMismatch"} 1`)
	assert.Contains(t, body, `hera_reconcile_total{balanced="false"} 1`)
	assert.Contains(t, body, `hera_audit_buffer_evictions_total 1`)
}

func TestMetricsNilSafe(t *testing.T) {
	var metrics *Metrics
	metrics.TransactionPosted("x")
	metrics.AuditEvicted()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.True(t, strings.Contains(body, `hera_http_requests_total{code="418",route="/test"} 1`), body)
	assert.Contains(t, body, `hera_http_request_duration_seconds_bucket{route="/test"`)
}

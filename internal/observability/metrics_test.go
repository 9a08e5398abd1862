package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/eventdesk/backoffice/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("quotes:expire-sweep").End(nil)

	body := scrape(t, metrics)
	assert.Contains(t, body, `backoffice_jobs_total{job="quotes:expire-sweep",status="success"} 1`)
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
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `backoffice_http_requests_total{code="418",route="/test"} 1`)
	assert.True(t, strings.Contains(body, `backoffice_http_request_duration_seconds_bucket{route="/test"`))
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveNotification("email", "success")
	metrics.ObserveNotification("whatsapp", "failure")
	metrics.ObserveNotification("whatsapp", "failure")
	metrics.ObserveQuoteTransition("DRAFT", "PENDING_MANAGER")
	metrics.ObserveQuoteTransition("", "DRAFT")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.notificationsSent.WithLabelValues("email", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.notificationsSent.WithLabelValues("whatsapp", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.quoteTransitions.WithLabelValues("PENDING_MANAGER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.quoteTransitions.WithLabelValues("DRAFT")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveNotification("email", "success")
	metrics.ObserveQuoteTransition("", "DRAFT")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

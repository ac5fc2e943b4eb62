package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	metrics := NewMetrics()
	metrics.SetLowStockSKUs(3)
	_ = metrics.Track("stock.snapshot").End(nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "chroma_jobs_total{job=\"stock.snapshot\",status=\"success\"} 1") {
		t.Fatalf("expected job run counter, got: %s", body)
	}
	if !strings.Contains(body, "chroma_low_stock_skus 3") {
		t.Fatalf("expected low stock gauge, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/batches")

	req := httptest.NewRequest(http.MethodGet, "/batches", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRR.Body.String()
	if !strings.Contains(body, "chroma_http_requests_total{code=\"418\",route=\"/batches\"} 1") {
		t.Fatalf("expected request counter, got: %s", body)
	}
	if !strings.Contains(body, "chroma_http_request_duration_seconds_bucket{route=\"/batches\"") {
		t.Fatalf("expected duration histogram, got: %s", body)
	}
}

func TestTrackerRecordsFailure(t *testing.T) {
	metrics := NewMetrics()
	jobErr := errors.New("boom")
	if got := metrics.Track("maintenance.idempotency_cleanup").End(jobErr); !errors.Is(got, jobErr) {
		t.Fatalf("tracker must return the error untouched")
	}

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "chroma_job_failures_total{job=\"maintenance.idempotency_cleanup\"} 1") {
		t.Fatalf("expected failure counter, got: %s", body)
	}
}

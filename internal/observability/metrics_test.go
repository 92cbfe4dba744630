package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fabtrack/fabtrack/internal/workflow"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("directory:refresh").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `fabtrack_jobs_total{job="directory:refresh",status="success"} 1`) {
		t.Fatalf("expected body to contain fabtrack_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "fabtrack_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "fabtrack_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestTransitionsAndOrderGauge(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveTransition(workflow.StageQuotation, workflow.StageMaterial, false)
	metrics.ObserveTransition(workflow.StageQuotation, workflow.StageMaterial, false)
	metrics.ObserveTransition(workflow.StagePainting, workflow.StageDelivery, true)

	err := metrics.RegisterOrderGauge(func() map[workflow.Stage]int {
		return map[workflow.Stage]int{workflow.StageMaterial: 3}
	})
	if err != nil {
		t.Fatalf("register gauge: %v", err)
	}

	body := scrape(t, metrics)
	for _, want := range []string{
		`fabtrack_stage_transitions_total{from="quotation",override="false",to="material"} 2`,
		`fabtrack_stage_transitions_total{from="painting",override="true",to="delivery"} 1`,
		`fabtrack_orders{stage="material"} 3`,
		`fabtrack_orders{stage="completed"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveTransition(workflow.StageQuotation, workflow.StageMaterial, false)
	if metrics.Jobs() != nil {
		t.Fatal("expected nil job metrics")
	}
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

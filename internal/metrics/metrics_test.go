package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/v1/projections", 200, 100*time.Millisecond)
	RecordRequest("POST", "/v1/events", 201, 50*time.Millisecond)
	RecordRequest("GET", "/v1/products/{id}/projection", 404, 10*time.Millisecond)
}

func TestRecordDomainCounters(t *testing.T) {
	RecordProjection("single")
	RecordProjection("batch")
	RecordRuleEvaluation("TASK_CREATED", "matched")
	RecordRuleEvaluation("TASK_CREATED", "failed")
	RecordNotificationDispatched("EMAIL")
	RecordNotificationProcessed("SENT", "EMAIL")
	RecordNotificationLatency("IN_APP", 20*time.Millisecond)
	RecordIdempotencyHit()
	RecordRateLimitRejection("tenant-1")
	IncInFlight()
	DecInFlight()
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/products/{id}/projection", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/products/abc/projection", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", rec.Code)
	}

	metricsRec := httptest.NewRecorder()
	Handler().ServeHTTP(metricsRec, httptest.NewRequest("GET", "/metrics", nil))

	body := metricsRec.Body.String()
	if !strings.Contains(body, `path="/v1/products/{id}/projection"`) {
		t.Error("expected route pattern label in metrics output")
	}
	if strings.Contains(body, `path="/v1/products/abc/projection"`) {
		t.Error("raw path should not be used as a label")
	}
}

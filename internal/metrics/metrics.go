package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsuite_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsuite_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	projectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsuite_projections_total",
			Help: "Inventory projections computed by mode",
		},
		[]string{"mode"},
	)

	ruleEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsuite_rule_evaluations_total",
			Help: "Notification rule evaluations by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	notificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsuite_notifications_dispatched_total",
			Help: "Notifications created and enqueued by type",
		},
		[]string{"type"},
	)

	notificationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsuite_notifications_processed_total",
			Help: "Notifications processed by terminal status and type",
		},
		[]string{"status", "type"},
	)

	notificationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsuite_notification_latency_seconds",
			Help:    "Time from enqueue to delivery",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	queueMessagesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsuite_queue_messages_in_flight",
			Help: "Current jobs being processed by the worker",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsuite_idempotency_hits_total",
			Help: "Event triggers served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsuite_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"tenant_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProjection counts a projection computed in the given mode (single, batch, availability).
func RecordProjection(mode string) {
	projectionsTotal.WithLabelValues(mode).Inc()
}

// RecordRuleEvaluation records the outcome of evaluating one rule.
func RecordRuleEvaluation(trigger, outcome string) {
	ruleEvaluations.WithLabelValues(trigger, outcome).Inc()
}

// RecordNotificationDispatched records a notification row + queue job pair.
func RecordNotificationDispatched(notifType string) {
	notificationsDispatched.WithLabelValues(notifType).Inc()
}

// RecordNotificationProcessed records notification processing result
func RecordNotificationProcessed(status, notifType string) {
	notificationsProcessed.WithLabelValues(status, notifType).Inc()
}

// RecordNotificationLatency records end-to-end notification delivery time
func RecordNotificationLatency(notifType string, latency time.Duration) {
	notificationLatency.WithLabelValues(notifType).Observe(latency.Seconds())
}

// IncInFlight and DecInFlight track jobs currently held by the worker.
func IncInFlight() { queueMessagesInFlight.Inc() }

func DecInFlight() { queueMessagesInFlight.Dec() }

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(tenantID string) {
	rateLimitRejections.WithLabelValues(tenantID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
// The chi route pattern is used as the path label so ids don't explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		RecordRequest(r.Method, path, wrapped.status, time.Since(start))
	})
}

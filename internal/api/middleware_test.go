package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/ability"
	"github.com/lalithlochan/opsuite/internal/redis"
)

func TestTenantKeyFunc(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		query    string
		expected string
	}{
		{"from header", "tenant-123", "", "tenant:tenant-123"},
		{"query is ignored", "", "tenant-456", ""},
		{"no tenant", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set(HeaderTenantID, tt.header)
			}
			if tt.query != "" {
				q := req.URL.Query()
				q.Set("tenant_id", tt.query)
				req.URL.RawQuery = q.Encode()
			}

			result := TenantKeyFunc(req)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestTenantMiddleware(t *testing.T) {
	tenant := uuid.New()

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{"valid tenant", tenant.String(), http.StatusOK},
		{"missing", "", http.StatusBadRequest},
		{"malformed", "tenant-123", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen uuid.UUID
			handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = tenantFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set(HeaderTenantID, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectedStatus == http.StatusOK && seen != tenant {
				t.Errorf("tenant not stored on context: %s", seen)
			}
		})
	}
}

func TestRequireAbility(t *testing.T) {
	tests := []struct {
		name           string
		role           string
		action         string
		subject        string
		expectedStatus int
	}{
		{"owner manages rules", ability.RoleOwner, ability.ActionCreate, ability.SubjectRule, http.StatusOK},
		{"member edits recipes", ability.RoleMember, ability.ActionUpdate, ability.SubjectRecipe, http.StatusOK},
		{"member cannot create rules", ability.RoleMember, ability.ActionCreate, ability.SubjectRule, http.StatusForbidden},
		{"viewer reads products", ability.RoleViewer, ability.ActionRead, ability.SubjectProduct, http.StatusOK},
		{"unknown role", "intern", ability.ActionRead, ability.SubjectProduct, http.StatusForbidden},
		{"no role", "", ability.ActionRead, ability.SubjectProduct, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAbility(tt.action, tt.subject)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.role != "" {
				req.Header.Set(HeaderUserRole, tt.role)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
		})
	}
}

func TestRateLimitMiddleware_NilLimiter(t *testing.T) {
	handler := RateLimitMiddleware(nil, zap.NewNop(), TenantKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(HeaderTenantID, "tenant-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("nil limiter should not set rate limit headers")
	}
}

func newTestLimiter(t *testing.T, limit int) *redis.RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("invalid miniredis port: %v", err)
	}
	client, err := redis.New(context.Background(), redis.Config{Host: mr.Host(), Port: port}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{Limit: limit, Window: time.Minute})
}

func TestRateLimitMiddleware_Enforces(t *testing.T) {
	limiter := newTestLimiter(t, 1)
	handler := RateLimitMiddleware(limiter, zap.NewNop(), TenantKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(HeaderTenantID, tenant)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send("tenant-a")
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Errorf("expected limit header 1, got %q", got)
	}
	if got := first.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected remaining 0, got %q", got)
	}

	second := send("tenant-a")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}
	retry, err := strconv.Atoi(second.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", second.Header().Get("Retry-After"))
	}

	if other := send("tenant-b"); other.Code != http.StatusOK {
		t.Errorf("other tenant should have its own window, got %d", other.Code)
	}
}

func TestRateLimitMiddleware_NoKey(t *testing.T) {
	limiter := newTestLimiter(t, 1)
	handler := RateLimitMiddleware(limiter, zap.NewNop(), TenantKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d without key: expected 200, got %d", i, rec.Code)
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/circuitbreaker"
)

// Pinger is implemented by *db.DB.
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Breakers []circuitbreaker.Stats `json:"breakers"`
}

// HealthHandler reports database reachability and channel breaker state.
// An unreachable database is a 503. An open breaker only degrades the
// service, since the other channels keep delivering.
func HealthHandler(database Pinger, breakers []*circuitbreaker.Breaker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Database: "ok",
			Breakers: make([]circuitbreaker.Stats, 0, len(breakers)),
		}

		for _, b := range breakers {
			stats := b.Stats()
			if b.State() != circuitbreaker.StateClosed {
				resp.Status = "degraded"
			}
			resp.Breakers = append(resp.Breakers, stats)
		}

		status := http.StatusOK
		if err := database.Health(r.Context()); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			resp.Status = "unavailable"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

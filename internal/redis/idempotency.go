package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// EventReplayTTL is how long a processed event's response is replayed for its Idempotency-Key.
	EventReplayTTL = 24 * time.Hour

	// inFlightTTL bounds how long a crashed request can hold a key.
	inFlightTTL = 2 * time.Minute

	inFlightMarker = "in-flight"
)

// ErrDuplicateRequest means another request with the same key is still being processed.
var ErrDuplicateRequest = errors.New("duplicate request: idempotency key is in flight")

// StoredResponse is the response replayed for a repeated idempotency key.
type StoredResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	StoredAt   int64           `json:"stored_at"`
}

// IdempotencyService deduplicates event submissions per tenant using Redis.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyService creates a new idempotency service.
func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

func idempotencyKey(tenantID, key string) string {
	return fmt.Sprintf("opsuite:idempotency:%s:%s", tenantID, key)
}

// Lookup returns the stored response for a key, or (nil, nil) if the key is unused.
// A key that is reserved but not yet completed yields ErrDuplicateRequest.
func (s *IdempotencyService) Lookup(ctx context.Context, tenantID, key string) (*StoredResponse, error) {
	val, err := s.client.rdb.Get(ctx, idempotencyKey(tenantID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == inFlightMarker {
		return nil, ErrDuplicateRequest
	}

	var resp StoredResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		s.logger.Error("failed to unmarshal stored response", zap.Error(err))
		return nil, fmt.Errorf("invalid stored response: %w", err)
	}

	s.logger.Debug("idempotency replay",
		zap.String("tenant_id", tenantID),
		zap.String("key", key),
	)
	return &resp, nil
}

// Begin looks the key up and, when unused, reserves it for this request.
// It returns the stored response on replay, nil when the caller now owns the key.
func (s *IdempotencyService) Begin(ctx context.Context, tenantID, key string) (*StoredResponse, error) {
	resp, err := s.Lookup(ctx, tenantID, key)
	if err != nil || resp != nil {
		return resp, err
	}

	reserved, err := s.client.rdb.SetNX(ctx, idempotencyKey(tenantID, key), inFlightMarker, inFlightTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !reserved {
		return nil, ErrDuplicateRequest
	}
	return nil, nil
}

// Complete stores the response for a reserved key.
func (s *IdempotencyService) Complete(ctx context.Context, tenantID, key string, resp *StoredResponse, ttl time.Duration) error {
	if resp.StoredAt == 0 {
		resp.StoredAt = time.Now().Unix()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := s.client.rdb.Set(ctx, idempotencyKey(tenantID, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Release drops a reservation so the client can retry after a failure.
func (s *IdempotencyService) Release(ctx context.Context, tenantID, key string) error {
	if err := s.client.rdb.Del(ctx, idempotencyKey(tenantID, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

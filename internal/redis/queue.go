package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/queue"
)

// Queue is a Redis list used as a job queue. Enqueue is LPUSH. Receive moves
// the job onto <key>:processing with BLMOVE, and Ack removes it from there.
// Jobs left in the processing list were never acked and go back to the queue
// on Requeue.
type Queue struct {
	client      *Client
	key         string
	processing  string
	pollTimeout time.Duration
	logger      *zap.Logger
}

// NewQueue creates a list-backed queue under key.
func NewQueue(client *Client, key string, logger *zap.Logger) *Queue {
	return &Queue{
		client:      client,
		key:         key,
		processing:  key + ":processing",
		pollTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// Enqueue pushes a job onto the list.
func (q *Queue) Enqueue(ctx context.Context, job *queue.Job) (string, error) {
	if job.EnqueuedAt == 0 {
		job.EnqueuedAt = time.Now().UnixNano()
	}

	body, err := job.Encode()
	if err != nil {
		return "", err
	}

	if err := q.client.rdb.LPush(ctx, q.key, body).Err(); err != nil {
		q.logger.Error("failed to push job",
			zap.Error(err),
			zap.String("notification_id", job.NotificationID.String()),
		)
		return "", fmt.Errorf("redis lpush failed: %w", err)
	}

	return job.NotificationID.String(), nil
}

// Receive blocks up to the poll timeout for the next job. The job stays in
// the processing list until the delivery is acked.
func (q *Queue) Receive(ctx context.Context) (*queue.Delivery, error) {
	body, err := q.client.rdb.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis blmove failed: %w", err)
	}

	job, err := queue.Decode([]byte(body))
	if err != nil {
		q.logger.Error("dropping undecodable job", zap.Error(err))
		if remErr := q.remove(ctx, body); remErr != nil {
			return nil, errors.Join(err, remErr)
		}
		return nil, err
	}

	return queue.NewDelivery(job, job.NotificationID.String(), func(ctx context.Context) error {
		return q.remove(ctx, body)
	}), nil
}

func (q *Queue) remove(ctx context.Context, body string) error {
	if err := q.client.rdb.LRem(ctx, q.processing, 1, body).Err(); err != nil {
		return fmt.Errorf("redis lrem failed: %w", err)
	}
	return nil
}

// Requeue moves every unacked job back onto the queue, oldest first in line.
// Call it before consumers start; jobs still being worked would be
// delivered twice.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.rdb.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("redis lmove failed: %w", err)
		}
		moved++
	}

	if moved > 0 {
		q.logger.Info("requeued unacked jobs", zap.Int("count", moved), zap.String("key", q.key))
	}
	return moved, nil
}

// Len reports how many jobs are waiting.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.rdb.LLen(ctx, q.key).Result()
}

// InFlight reports how many received jobs have not been acked.
func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	return q.client.rdb.LLen(ctx, q.processing).Result()
}

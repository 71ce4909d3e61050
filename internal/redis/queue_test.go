package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/queue"
)

func TestQueue_FIFO(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test:jobs", zap.NewNop())
	ctx := context.Background()

	first := &queue.Job{NotificationID: uuid.New(), Type: "EMAIL"}
	second := &queue.Job{NotificationID: uuid.New(), Type: "SMS"}

	for _, job := range []*queue.Job{first, second} {
		if _, err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if n, _ := q.Len(ctx); n != 2 {
		t.Errorf("expected 2 waiting jobs, got %d", n)
	}

	for _, want := range []*queue.Job{first, second} {
		d, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if d == nil {
			t.Fatal("expected a delivery")
		}
		if d.Job.NotificationID != want.NotificationID {
			t.Errorf("expected %s, got %s", want.NotificationID, d.Job.NotificationID)
		}
		if err := d.Ack(ctx); err != nil {
			t.Errorf("ack: %v", err)
		}
	}

	if n, _ := q.InFlight(ctx); n != 0 {
		t.Errorf("acked jobs should leave the processing list, %d left", n)
	}
}

func TestQueue_UnackedJobIsRequeued(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test:jobs", zap.NewNop())
	q.pollTimeout = 50 * time.Millisecond
	ctx := context.Background()

	job := &queue.Job{NotificationID: uuid.New(), Type: "EMAIL"}
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	d, err := q.Receive(ctx)
	if err != nil || d == nil {
		t.Fatalf("receive: %v, %v", d, err)
	}
	// Not acked, as when the status write fails or the worker stops mid-job.

	if n, _ := q.InFlight(ctx); n != 1 {
		t.Fatalf("expected 1 unacked job, got %d", n)
	}

	moved, err := q.Requeue(ctx)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if moved != 1 {
		t.Errorf("expected 1 requeued job, got %d", moved)
	}

	again, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive after requeue: %v", err)
	}
	if again == nil || again.Job.NotificationID != job.NotificationID {
		t.Fatalf("unacked job was not redelivered, got %+v", again)
	}
	if err := again.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if moved, _ := q.Requeue(ctx); moved != 0 {
		t.Errorf("acked job should not be requeued, moved %d", moved)
	}
}

func TestQueue_RequeueKeepsOrder(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test:jobs", zap.NewNop())
	ctx := context.Background()

	jobs := []*queue.Job{
		{NotificationID: uuid.New(), Type: "EMAIL"},
		{NotificationID: uuid.New(), Type: "SMS"},
		{NotificationID: uuid.New(), Type: "PUSH"},
	}
	for _, job := range jobs {
		if _, err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for range jobs[:2] {
		if _, err := q.Receive(ctx); err != nil {
			t.Fatalf("receive: %v", err)
		}
	}

	if _, err := q.Requeue(ctx); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	for i, want := range jobs {
		d, err := q.Receive(ctx)
		if err != nil || d == nil {
			t.Fatalf("receive %d: %v, %v", i, d, err)
		}
		if d.Job.NotificationID != want.NotificationID {
			t.Errorf("position %d: expected %s, got %s", i, want.NotificationID, d.Job.NotificationID)
		}
	}
}

func TestQueue_EmptyPollTimesOut(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test:jobs", zap.NewNop())
	q.pollTimeout = 50 * time.Millisecond

	d, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != nil {
		t.Errorf("expected no delivery, got %+v", d)
	}
}

func TestQueue_DropsUndecodable(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test:jobs", zap.NewNop())
	mr.Lpush("test:jobs", "not json")

	if _, err := q.Receive(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
	if n, _ := q.Len(context.Background()); n != 0 {
		t.Errorf("undecodable job should be consumed, %d left", n)
	}
	if n, _ := q.InFlight(context.Background()); n != 0 {
		t.Errorf("undecodable job should not stay in processing, %d left", n)
	}
}

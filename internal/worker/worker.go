// Package worker consumes notification jobs and delivers them through channel senders.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/metrics"
	"github.com/lalithlochan/opsuite/internal/queue"
	"github.com/lalithlochan/opsuite/internal/rules"
)

var (
	ErrUnsupportedType   = errors.New("unsupported notification type")
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Store is the notification state the worker reads and finalizes.
// *db.NotificationRepository implements it.
type Store interface {
	GetNotification(ctx context.Context, id uuid.UUID) (*db.Notification, error)
	GetUser(ctx context.Context, tenantID, id uuid.UUID) (*db.User, error)
	MarkNotificationStatus(ctx context.Context, id uuid.UUID, status string, errorMsg *string) (bool, error)
}

type Config struct {
	// Concurrency is the number of receive loops.
	Concurrency int
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration
}

type Worker struct {
	consumer queue.Consumer
	store    Store
	sender   Sender
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

func New(consumer queue.Consumer, store Store, sender Sender, cfg Config, logger *zap.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}

	return &Worker{
		consumer: consumer,
		store:    store,
		sender:   sender,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run receives and processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting", zap.Int("concurrency", w.config.Concurrency))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.config.Concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	err := g.Wait()

	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		delivery, err := w.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.ErrorBackoff):
			}
			continue
		}
		if delivery == nil {
			continue
		}

		if err := w.Process(ctx, delivery); err != nil {
			w.logger.Warn("notification processing failed",
				zap.Error(err),
				zap.String("notification_id", delivery.Job.NotificationID.String()),
				zap.String("message_id", delivery.MessageID),
			)
		}
	}
}

// Process handles one delivery. The message is acked once the notification
// holds a terminal status; it stays unacked only if that status could not be
// written. A send failure is recorded as FAILED and then returned.
func (w *Worker) Process(ctx context.Context, d *queue.Delivery) error {
	metrics.IncInFlight()
	defer metrics.DecInFlight()

	job := d.Job
	log := w.logger.With(
		zap.String("notification_id", job.NotificationID.String()),
		zap.String("tenant_id", job.TenantID.String()),
	)

	notif, err := w.store.GetNotification(ctx, job.NotificationID)
	if errors.Is(err, db.ErrNotFound) {
		log.Warn("dropping job for unknown notification")
		w.ack(ctx, d, log)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}

	if notif.Status != db.StatusPending {
		log.Debug("notification already finalized, skipping", zap.String("status", notif.Status))
		w.ack(ctx, d, log)
		return nil
	}

	sendErr := w.deliver(ctx, job, notif)

	status := db.StatusSent
	var errMsg *string
	if sendErr != nil {
		status = db.StatusFailed
		msg := sendErr.Error()
		errMsg = &msg
	}

	updated, err := w.store.MarkNotificationStatus(ctx, notif.ID, status, errMsg)
	if err != nil {
		return errors.Join(fmt.Errorf("mark notification %s: %w", status, err), sendErr)
	}
	if !updated {
		log.Debug("notification finalized concurrently")
	}

	metrics.RecordNotificationProcessed(status, notif.Type)
	metrics.RecordNotificationLatency(notif.Type, job.Age(w.now()))
	w.ack(ctx, d, log)

	if sendErr != nil {
		return fmt.Errorf("deliver %s: %w", notif.Type, sendErr)
	}
	log.Info("notification sent", zap.String("type", notif.Type))
	return nil
}

func (w *Worker) deliver(ctx context.Context, job *queue.Job, notif *db.Notification) error {
	if !db.ValidNotificationType(notif.Type) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, notif.Type)
	}

	user, err := w.store.GetUser(ctx, notif.TenantID, notif.RecipientID)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRecipientNotFound, notif.RecipientID)
	}
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}

	return w.sender.Send(ctx, &Message{
		NotificationID: notif.ID,
		TenantID:       notif.TenantID,
		Type:           notif.Type,
		Recipient:      user,
		Subject:        rules.Render(job.Subject, job.Variables),
		Body:           rules.Render(job.Content, job.Variables),
	})
}

func (w *Worker) ack(ctx context.Context, d *queue.Delivery, log *zap.Logger) {
	if err := d.Ack(ctx); err != nil {
		log.Warn("failed to ack job", zap.Error(err), zap.String("message_id", d.MessageID))
	}
}

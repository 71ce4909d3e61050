package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/metrics"
	"github.com/lalithlochan/opsuite/internal/queue"
)

// NotificationStore persists dispatched notifications.
// *db.NotificationRepository implements it.
type NotificationStore interface {
	CreateNotification(ctx context.Context, notif *db.Notification) error
	MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkNotificationStatus(ctx context.Context, id uuid.UUID, status string, errorMsg *string) (bool, error)
}

// Message is one notification to create and enqueue.
type Message struct {
	TenantID    uuid.UUID
	RuleID      *uuid.UUID
	Template    *db.NotificationTemplate
	RecipientID uuid.UUID
	Variables   map[string]string
}

// Dispatcher writes the PENDING row and hands the job to the queue.
type Dispatcher struct {
	store    NotificationStore
	producer queue.Producer
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(store NotificationStore, producer queue.Producer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, producer: producer, logger: logger}
}

// Dispatch creates the notification and enqueues its job. If the queue rejects
// the job the row is marked FAILED, so it never sits in PENDING with no job behind it.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (*db.Notification, error) {
	tmpl := msg.Template

	notif := &db.Notification{
		ID:          uuid.New(),
		TenantID:    msg.TenantID,
		TemplateID:  tmpl.ID,
		RuleID:      msg.RuleID,
		RecipientID: msg.RecipientID,
		Type:        tmpl.Type,
		Subject:     Render(tmpl.Subject, msg.Variables),
		Content:     Render(tmpl.Content, msg.Variables),
		Variables:   msg.Variables,
		Status:      db.StatusPending,
	}

	if err := d.store.CreateNotification(ctx, notif); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	job := &queue.Job{
		NotificationID: notif.ID,
		TenantID:       notif.TenantID,
		TemplateID:     notif.TemplateID,
		RuleID:         notif.RuleID,
		RecipientID:    notif.RecipientID,
		Type:           notif.Type,
		Subject:        tmpl.Subject,
		Content:        tmpl.Content,
		Variables:      msg.Variables,
		EnqueuedAt:     time.Now().UnixNano(),
	}

	messageID, err := d.producer.Enqueue(ctx, job)
	if err != nil {
		reason := fmt.Sprintf("enqueue failed: %v", err)
		if _, markErr := d.store.MarkNotificationStatus(ctx, notif.ID, db.StatusFailed, &reason); markErr != nil {
			d.logger.Error("failed to mark unqueued notification as failed",
				zap.Error(markErr),
				zap.String("notification_id", notif.ID.String()),
			)
		}
		notif.Status = db.StatusFailed
		notif.ErrorMessage = &reason
		return notif, fmt.Errorf("enqueue notification %s: %w", notif.ID, err)
	}

	now := time.Now()
	if err := d.store.MarkQueued(ctx, notif.ID, now); err != nil {
		d.logger.Warn("failed to stamp queued_at",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
		)
	} else {
		notif.QueuedAt = &now
	}

	metrics.RecordNotificationDispatched(notif.Type)
	d.logger.Debug("notification dispatched",
		zap.String("notification_id", notif.ID.String()),
		zap.String("recipient_id", notif.RecipientID.String()),
		zap.String("message_id", messageID),
	)
	return notif, nil
}

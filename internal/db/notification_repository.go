package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// NotificationRepository handles templates, rules, notifications and the user directory.
type NotificationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateTemplate inserts a notification template
func (r *NotificationRepository) CreateTemplate(ctx context.Context, tmpl *NotificationTemplate) error {
	query := `
		INSERT INTO notification_templates (
			id, tenant_id, name, type, subject, content, variables, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	variables := tmpl.Variables
	if variables == nil {
		variables = map[string]string{}
	}

	err := r.db.Pool().QueryRow(ctx, query,
		tmpl.ID,
		tmpl.TenantID,
		tmpl.Name,
		tmpl.Type,
		tmpl.Subject,
		tmpl.Content,
		variables,
		tmpl.IsActive,
	).Scan(&tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a template by ID within a tenant
func (r *NotificationRepository) GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*NotificationTemplate, error) {
	query := `
		SELECT id, tenant_id, name, type, subject, content, variables, is_active, created_at, updated_at
		FROM notification_templates
		WHERE id = $1 AND tenant_id = $2
	`

	var tmpl NotificationTemplate
	err := r.db.Pool().QueryRow(ctx, query, id, tenantID).Scan(
		&tmpl.ID,
		&tmpl.TenantID,
		&tmpl.Name,
		&tmpl.Type,
		&tmpl.Subject,
		&tmpl.Content,
		&tmpl.Variables,
		&tmpl.IsActive,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return &tmpl, nil
}

// CreateRule inserts a notification rule
func (r *NotificationRepository) CreateRule(ctx context.Context, rule *NotificationRule) error {
	query := `
		INSERT INTO notification_rules (
			id, tenant_id, name, trigger, template_id, conditions, recipients, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	conditions := rule.Conditions
	if conditions == nil {
		conditions = []RuleCondition{}
	}
	recipients := rule.Recipients
	if recipients == nil {
		recipients = []RecipientRule{}
	}

	err := r.db.Pool().QueryRow(ctx, query,
		rule.ID,
		rule.TenantID,
		rule.Name,
		rule.Trigger,
		rule.TemplateID,
		conditions,
		recipients,
		rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	r.logger.Info("notification rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("trigger", rule.Trigger),
	)
	return nil
}

const ruleColumns = `
	id, tenant_id, name, trigger, template_id, conditions, recipients,
	is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*NotificationRule, error) {
	var rule NotificationRule
	err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&rule.Trigger,
		&rule.TemplateID,
		&rule.Conditions,
		&rule.Recipients,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRule retrieves a rule by ID within a tenant
func (r *NotificationRepository) GetRule(ctx context.Context, tenantID, id uuid.UUID) (*NotificationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM notification_rules WHERE id = $1 AND tenant_id = $2`

	rule, err := scanRule(r.db.Pool().QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query rule: %w", err)
	}
	return rule, nil
}

// ListActiveRules returns the active rules bound to a trigger, oldest first.
func (r *NotificationRepository) ListActiveRules(ctx context.Context, tenantID uuid.UUID, trigger string) ([]*NotificationRule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM notification_rules
		WHERE tenant_id = $1 AND trigger = $2 AND is_active = TRUE
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, trigger)
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	var rules []*NotificationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rules, nil
}

// CreateNotification inserts a new notification into the database
func (r *NotificationRepository) CreateNotification(ctx context.Context, notif *Notification) error {
	query := `
		INSERT INTO notifications (
			id, tenant_id, template_id, rule_id, recipient_id, type,
			subject, content, variables, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	variables := notif.Variables
	if variables == nil {
		variables = map[string]string{}
	}

	err := r.db.Pool().QueryRow(ctx, query,
		notif.ID,
		notif.TenantID,
		notif.TemplateID,
		notif.RuleID,
		notif.RecipientID,
		notif.Type,
		notif.Subject,
		notif.Content,
		variables,
		notif.Status,
	).Scan(&notif.CreatedAt, &notif.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// MarkQueued stamps the time a notification's job was accepted by the queue.
func (r *NotificationRepository) MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE notifications SET queued_at = $1, updated_at = NOW() WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification queued: %w", err)
	}
	return nil
}

const notificationColumns = `
	id, tenant_id, template_id, rule_id, recipient_id, type, subject, content,
	variables, status, error_message, queued_at, sent_at, created_at, updated_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var notif Notification
	err := row.Scan(
		&notif.ID,
		&notif.TenantID,
		&notif.TemplateID,
		&notif.RuleID,
		&notif.RecipientID,
		&notif.Type,
		&notif.Subject,
		&notif.Content,
		&notif.Variables,
		&notif.Status,
		&notif.ErrorMessage,
		&notif.QueuedAt,
		&notif.SentAt,
		&notif.CreatedAt,
		&notif.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &notif, nil
}

// GetNotification retrieves a notification by ID
func (r *NotificationRepository) GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	notif, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return notif, nil
}

// ListNotifications retrieves notifications for a tenant with pagination,
// optionally narrowed to one recipient.
func (r *NotificationRepository) ListNotifications(
	ctx context.Context,
	tenantID uuid.UUID,
	recipientID *uuid.UUID,
	limit int,
	offset int,
) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE tenant_id = $1 AND ($2::uuid IS NULL OR recipient_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, recipientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// MarkNotificationStatus moves a pending notification to SENT or FAILED.
// Returns false when the row was no longer pending, so terminal states are never overwritten.
func (r *NotificationRepository) MarkNotificationStatus(ctx context.Context, id uuid.UUID, status string, errorMsg *string) (bool, error) {
	if status != StatusSent && status != StatusFailed {
		return false, fmt.Errorf("invalid terminal status: %s", status)
	}

	query := `
		UPDATE notifications
		SET status = $1,
		    error_message = $2,
		    sent_at = CASE WHEN $1 = 'SENT' THEN NOW() ELSE sent_at END,
		    updated_at = NOW()
		WHERE id = $3 AND status = 'PENDING'
	`

	result, err := r.db.Pool().Exec(ctx, query, status, errorMsg, id)
	if err != nil {
		r.logger.Error("failed to update notification status",
			zap.Error(err),
			zap.String("notification_id", id.String()),
			zap.String("status", status),
		)
		return false, fmt.Errorf("update notification status: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// GetUser retrieves a user by ID within a tenant
func (r *NotificationRepository) GetUser(ctx context.Context, tenantID, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, tenant_id, email, phone, role, is_active, created_at
		FROM users
		WHERE id = $1 AND tenant_id = $2
	`

	var u User
	err := r.db.Pool().QueryRow(ctx, query, id, tenantID).Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&u.Phone,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// ListUserIDsByRole returns the active users currently holding a role.
func (r *NotificationRepository) ListUserIDsByRole(ctx context.Context, tenantID uuid.UUID, role string) ([]uuid.UUID, error) {
	return r.collectIDs(ctx,
		`SELECT id FROM users WHERE tenant_id = $1 AND role = $2 AND is_active = TRUE ORDER BY id`,
		tenantID, role,
	)
}

// ListUserIDsPage returns up to limit active user ids ordered after the given id.
// Pass uuid.Nil to start from the beginning.
func (r *NotificationRepository) ListUserIDsPage(ctx context.Context, tenantID, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	return r.collectIDs(ctx,
		`SELECT id FROM users WHERE tenant_id = $1 AND is_active = TRUE AND id > $2 ORDER BY id LIMIT $3`,
		tenantID, after, limit,
	)
}

func (r *NotificationRepository) collectIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return ids, nil
}

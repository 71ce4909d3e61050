package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/metrics"
	"github.com/lalithlochan/opsuite/internal/redis"
	"github.com/lalithlochan/opsuite/internal/rules"
)

// TemplateRequest is the body of POST /v1/templates
type TemplateRequest struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Subject   string            `json:"subject"`
	Content   string            `json:"content"`
	Variables map[string]string `json:"variables"`
	IsActive  *bool             `json:"is_active"`
}

// CreateTemplate handles POST /v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Name == "" || req.Type == "" || req.Content == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name, type, and content are required")
		return
	}
	if !db.ValidNotificationType(req.Type) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid type", "type must be EMAIL, IN_APP, PUSH, or SMS")
		return
	}

	tmpl := &db.NotificationTemplate{
		ID:        uuid.New(),
		TenantID:  tenantFromContext(r.Context()),
		Name:      req.Name,
		Type:      req.Type,
		Subject:   req.Subject,
		Content:   req.Content,
		Variables: req.Variables,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}

	if err := h.repo.CreateTemplate(r.Context(), tmpl); err != nil {
		h.writeServiceError(w, r, err, "create template")
		return
	}

	h.logger.Info("template created",
		zap.String("template_id", tmpl.ID.String()),
		zap.String("type", tmpl.Type),
	)
	h.writeJSON(w, http.StatusCreated, tmpl)
}

// RuleRequest is the body of POST /v1/rules
type RuleRequest struct {
	Name       string             `json:"name"`
	Trigger    string             `json:"trigger"`
	TemplateID uuid.UUID          `json:"template_id"`
	Conditions []db.RuleCondition `json:"conditions"`
	Recipients []db.RecipientRule `json:"recipients"`
	IsActive   *bool              `json:"is_active"`
}

func (req *RuleRequest) validate() error {
	if req.Name == "" || req.Trigger == "" || req.TemplateID == uuid.Nil {
		return errors.New("name, trigger, and template_id are required")
	}
	if len(req.Recipients) == 0 {
		return errors.New("at least one recipient is required")
	}
	if err := rules.ValidateConditions(req.Conditions); err != nil {
		return err
	}
	for _, rc := range req.Recipients {
		if !rules.ValidRecipientType(rc.Type) {
			return fmt.Errorf("%w: %q", rules.ErrUnknownRecipientType, rc.Type)
		}
	}
	return nil
}

// CreateRule handles POST /v1/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)

	var req RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid rule", err.Error())
		return
	}

	if _, err := h.repo.GetTemplate(ctx, tenantID, req.TemplateID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown template", "template_id does not exist for this tenant")
			return
		}
		h.writeServiceError(w, r, err, "load template")
		return
	}

	rule := &db.NotificationRule{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Name:       req.Name,
		Trigger:    req.Trigger,
		TemplateID: req.TemplateID,
		Conditions: req.Conditions,
		Recipients: req.Recipients,
		IsActive:   req.IsActive == nil || *req.IsActive,
	}

	if err := h.repo.CreateRule(ctx, rule); err != nil {
		h.writeServiceError(w, r, err, "create rule")
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}

// GetRule handles GET /v1/rules/{id}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	rule, err := h.repo.GetRule(r.Context(), tenantFromContext(r.Context()), ruleID)
	if err != nil {
		h.writeServiceError(w, r, err, "get rule")
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

// EventRequest is the body of POST /v1/events
type EventRequest struct {
	Trigger string         `json:"trigger"`
	Payload map[string]any `json:"payload"`
}

// EventResponse summarizes the rules an event matched or failed.
type EventResponse struct {
	Trigger string              `json:"trigger"`
	Rules   []rules.RuleOutcome `json:"rules"`
}

// SubmitEvent handles POST /v1/events
// Supports idempotency via the Idempotency-Key header.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	tenant := tenantID.String()

	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Trigger == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "trigger is required")
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	reserved := false
	if idempotencyKey != "" && h.idempotency != nil {
		stored, err := h.idempotency.Begin(ctx, tenant, idempotencyKey)
		switch {
		case errors.Is(err, redis.ErrDuplicateRequest):
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Request is already being processed",
				"Another request with this idempotency key is in progress")
			return
		case err != nil:
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		case stored != nil:
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
			return
		default:
			reserved = true
		}
	}

	result, err := h.engine.Evaluate(ctx, rules.Event{
		TenantID: tenantID,
		Trigger:  req.Trigger,
		Payload:  req.Payload,
	})
	if err != nil {
		if reserved {
			if relErr := h.idempotency.Release(ctx, tenant, idempotencyKey); relErr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		h.writeServiceError(w, r, err, "evaluate event")
		return
	}

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(EventResponse{Trigger: result.Trigger, Rules: result.Summary()}); err != nil {
		h.writeServiceError(w, r, err, "encode event response")
		return
	}

	if reserved {
		stored := &redis.StoredResponse{StatusCode: http.StatusOK, Body: body.Bytes()}
		if err := h.idempotency.Complete(ctx, tenant, idempotencyKey, stored, redis.EventReplayTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

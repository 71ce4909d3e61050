package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/rules"
)

// SendNotification handles POST /v1/notifications
// Recipients whose job could not be enqueued come back with status FAILED.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req rules.DirectSend
	if !h.decode(w, r, &req) {
		return
	}
	if req.TemplateID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "template_id is required")
		return
	}
	req.TenantID = tenantFromContext(r.Context())

	notifications, err := h.engine.SendDirect(r.Context(), req)
	if err != nil && len(notifications) == 0 {
		h.writeServiceError(w, r, err, "send notification")
		return
	}

	resp := map[string]any{
		"data":  notifications,
		"count": len(notifications),
	}
	if err != nil {
		h.logger.Warn("direct send partially failed",
			zap.Error(err),
			zap.String("tenant_id", req.TenantID.String()),
		)
		resp["error"] = err.Error()
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetNotification handles GET /v1/notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	notifID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	notif, err := h.repo.GetNotification(r.Context(), notifID)
	if err != nil {
		h.writeServiceError(w, r, err, "get notification")
		return
	}
	if notif.TenantID != tenantFromContext(r.Context()) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	h.writeJSON(w, http.StatusOK, notif)
}

// ListNotifications handles GET /v1/notifications?recipient_id=xxx&limit=20&offset=0
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromContext(r.Context())

	var recipientID *uuid.UUID
	if raw := r.URL.Query().Get("recipient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipient_id", "recipient_id must be a valid UUID")
			return
		}
		recipientID = &id
	}

	limit, offset := pagination(r)

	notifications, err := h.repo.ListNotifications(r.Context(), tenantID, recipientID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "list notifications")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":   notifications,
		"limit":  limit,
		"offset": offset,
		"count":  len(notifications),
	})
}

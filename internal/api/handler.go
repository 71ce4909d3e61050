package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/inventory"
	"github.com/lalithlochan/opsuite/internal/redis"
	"github.com/lalithlochan/opsuite/internal/rules"
)

// InventoryService is implemented by *inventory.Service.
type InventoryService interface {
	ProjectProduct(ctx context.Context, tenantID, productID uuid.UUID) (*inventory.Projection, error)
	ProjectAll(ctx context.Context, tenantID uuid.UUID) ([]*inventory.Projection, error)
	CheckAvailability(ctx context.Context, tenantID, productID uuid.UUID, quantity decimal.Decimal) (*inventory.Availability, error)
	ListRecipes(ctx context.Context, tenantID, productID uuid.UUID) ([]*db.Recipe, error)
	CreateRecipe(ctx context.Context, tenantID, productID uuid.UUID, in inventory.CreateRecipeInput) (*db.Recipe, error)
	AddIngredient(ctx context.Context, tenantID, recipeID uuid.UUID, in inventory.IngredientInput) (*db.Recipe, error)
	UpdateIngredient(ctx context.Context, tenantID, recipeID, lineID uuid.UUID, in inventory.UpdateIngredientInput) (*db.Recipe, error)
	RemoveIngredient(ctx context.Context, tenantID, recipeID, lineID uuid.UUID) (*db.Recipe, error)
	DuplicateRecipe(ctx context.Context, tenantID, recipeID uuid.UUID) (*db.Recipe, error)
	SetDefaultRecipe(ctx context.Context, tenantID, recipeID uuid.UUID) (*db.Recipe, error)
}

// RuleEngine is implemented by *rules.Evaluator.
type RuleEngine interface {
	Evaluate(ctx context.Context, ev rules.Event) (*rules.BatchResult, error)
	SendDirect(ctx context.Context, req rules.DirectSend) ([]*db.Notification, error)
}

// NotificationRepository defines the notification-side database operations
// the handlers call directly.
type NotificationRepository interface {
	CreateTemplate(ctx context.Context, tmpl *db.NotificationTemplate) error
	GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*db.NotificationTemplate, error)
	CreateRule(ctx context.Context, rule *db.NotificationRule) error
	GetRule(ctx context.Context, tenantID, id uuid.UUID) (*db.NotificationRule, error)
	GetNotification(ctx context.Context, id uuid.UUID) (*db.Notification, error)
	ListNotifications(ctx context.Context, tenantID uuid.UUID, recipientID *uuid.UUID, limit, offset int) ([]*db.Notification, error)
}

// Idempotency is implemented by *redis.IdempotencyService.
type Idempotency interface {
	Begin(ctx context.Context, tenantID, key string) (*redis.StoredResponse, error)
	Complete(ctx context.Context, tenantID, key string, resp *redis.StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, tenantID, key string) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	inventory   InventoryService
	engine      RuleEngine
	repo        NotificationRepository
	idempotency Idempotency // nil if Redis not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, inv InventoryService, engine RuleEngine, repo NotificationRepository) *Handler {
	return &Handler{
		logger:    logger,
		inventory: inv,
		engine:    engine,
		repo:      repo,
	}
}

// WithIdempotency enables Idempotency-Key handling on event submission.
func (h *Handler) WithIdempotency(idem Idempotency) *Handler {
	h.idempotency = idem
	return h
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeProblem(w, status, errType, title, detail)
}

func writeProblem(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// writeServiceError maps domain errors to problem responses. Anything
// unrecognized is logged and reported as a 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, inventory.ErrRecipeNotFound),
		errors.Is(err, inventory.ErrIngredientNotFound),
		errors.Is(err, rules.ErrTemplateNotFound),
		errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Resource not found", err.Error())

	case errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, rules.ErrUnknownOperator),
		errors.Is(err, rules.ErrUnknownRecipientType),
		errors.Is(err, rules.ErrInvalidRecipient),
		errors.Is(err, rules.ErrTemplateInactive):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request", err.Error())

	case errors.Is(err, rules.ErrTooManyRecipients):
		h.writeError(w, http.StatusUnprocessableEntity, "too_many_recipients", "Recipient limit exceeded", err.Error())

	case errors.Is(err, inventory.ErrDuplicateIngredient),
		errors.Is(err, db.ErrConflict):
		h.writeError(w, http.StatusConflict, "conflict", "Conflicting change", err.Error())

	default:
		h.logger.Error(op+" failed",
			zap.Error(err),
			zap.String("tenant_id", tenantFromContext(r.Context()).String()),
			zap.String("path", r.URL.Path),
		)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

// pathUUID parses a chi URL parameter, writing a 400 when it is not a UUID.
func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid "+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return false
	}
	return true
}

// pagination reads limit/offset with defaults (20, 0) and a ceiling of 100.
func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

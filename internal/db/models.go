package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by repositories when the requested row does not exist
// (or belongs to another tenant).
var ErrNotFound = errors.New("record not found")

// User is a tenant member that notifications can be addressed to.
type User struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a sellable or intermediate item. Ingredients are products too.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	HasRecipe    bool            `json:"has_recipe"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Recipe is one version of a product's bill of materials.
type Recipe struct {
	ID            uuid.UUID           `json:"id"`
	TenantID      uuid.UUID           `json:"tenant_id"`
	ProductID     uuid.UUID           `json:"product_id"`
	Name          string              `json:"name"`
	Version       int                 `json:"version"`
	IsDefault     bool                `json:"is_default"`
	IsActive      bool                `json:"is_active"`
	EstimatedCost decimal.Decimal     `json:"estimated_cost"`
	TotalCost     decimal.Decimal     `json:"total_cost"`
	Ingredients   []*RecipeIngredient `json:"ingredients"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RecipeIngredient links a recipe to an ingredient product.
//
// UnitCost/TotalCost are the snapshot taken when the line was written.
// The Ingredient* fields are joined live from the ingredient product on read.
type RecipeIngredient struct {
	ID           uuid.UUID       `json:"id"`
	RecipeID     uuid.UUID       `json:"recipe_id"`
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	IsOptional   bool            `json:"is_optional"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Position     int             `json:"position"`

	IngredientName  string          `json:"ingredient_name"`
	IngredientStock decimal.Decimal `json:"ingredient_stock"`
	IngredientCost  decimal.Decimal `json:"ingredient_cost"`
}

// Notification types
const (
	TypeEmail = "EMAIL"
	TypeInApp = "IN_APP"
	TypePush  = "PUSH"
	TypeSMS   = "SMS"
)

// ValidNotificationType reports whether t is one of the supported template types.
func ValidNotificationType(t string) bool {
	switch t {
	case TypeEmail, TypeInApp, TypePush, TypeSMS:
		return true
	}
	return false
}

// Status constants. Transitions only move forward from pending.
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// NotificationTemplate is a reusable message definition. Variables maps a
// placeholder name used in Subject/Content to a dot-path into the event payload.
type NotificationTemplate struct {
	ID        uuid.UUID         `json:"id"`
	TenantID  uuid.UUID         `json:"tenant_id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Subject   string            `json:"subject"`
	Content   string            `json:"content"`
	Variables map[string]string `json:"variables"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RuleCondition is one {field, operator, value} clause of a rule.
type RuleCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// RecipientRule resolves to zero or more user ids.
type RecipientRule struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// NotificationRule binds a trigger to a template with conditions and recipients.
type NotificationRule struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	Name       string          `json:"name"`
	Trigger    string          `json:"trigger"`
	TemplateID uuid.UUID       `json:"template_id"`
	Conditions []RuleCondition `json:"conditions"`
	Recipients []RecipientRule `json:"recipients"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Notification is one dispatched message to a single recipient.
type Notification struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     uuid.UUID         `json:"tenant_id"`
	TemplateID   uuid.UUID         `json:"template_id"`
	RuleID       *uuid.UUID        `json:"rule_id,omitempty"`
	RecipientID  uuid.UUID         `json:"recipient_id"`
	Type         string            `json:"type"`
	Subject      string            `json:"subject"`
	Content      string            `json:"content"`
	Variables    map[string]string `json:"variables"`
	Status       string            `json:"status"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	QueuedAt     *time.Time        `json:"queued_at,omitempty"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

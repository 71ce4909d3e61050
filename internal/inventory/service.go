package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/metrics"
)

// Store is the persistence the service needs. *db.InventoryRepository implements it.
type Store interface {
	GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*db.Product, error)
	ListRecipeProducts(ctx context.Context, tenantID uuid.UUID) ([]*db.Product, error)
	GetRecipe(ctx context.Context, tenantID, id uuid.UUID) (*db.Recipe, error)
	GetDefaultRecipe(ctx context.Context, tenantID, productID uuid.UUID) (*db.Recipe, error)
	ListRecipesForProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]*db.Recipe, error)
	CreateRecipe(ctx context.Context, recipe *db.Recipe) error
	AddIngredient(ctx context.Context, line *db.RecipeIngredient) error
	UpdateIngredient(ctx context.Context, line *db.RecipeIngredient) error
	RemoveIngredient(ctx context.Context, recipeID, lineID uuid.UUID) error
	UpdateRecipeCost(ctx context.Context, recipeID uuid.UUID, estimated, total decimal.Decimal) error
	SetDefaultRecipe(ctx context.Context, tenantID, recipeID uuid.UUID) error
}

// IngredientInput describes a line to put on a recipe.
type IngredientInput struct {
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	IsOptional   bool            `json:"is_optional"`
}

// CreateRecipeInput is the body of a new recipe.
type CreateRecipeInput struct {
	Name        string            `json:"name"`
	Ingredients []IngredientInput `json:"ingredients"`
}

// UpdateIngredientInput patches a recipe line. Nil fields are left unchanged.
type UpdateIngredientInput struct {
	Quantity   *decimal.Decimal `json:"quantity"`
	Unit       *string          `json:"unit"`
	IsOptional *bool            `json:"is_optional"`
}

// Service runs projections and recipe maintenance for a tenant.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates an inventory service
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) product(ctx context.Context, tenantID, id uuid.UUID) (*db.Product, error) {
	p, err := s.store.GetProduct(ctx, tenantID, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, err
}

func (s *Service) recipe(ctx context.Context, tenantID, id uuid.UUID) (*db.Recipe, error) {
	rc, err := s.store.GetRecipe(ctx, tenantID, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, id)
	}
	return rc, err
}

// defaultRecipe returns nil without error when the product has no default recipe.
func (s *Service) defaultRecipe(ctx context.Context, tenantID, productID uuid.UUID) (*db.Recipe, error) {
	rc, err := s.store.GetDefaultRecipe(ctx, tenantID, productID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return rc, err
}

// ProjectProduct computes the projection for one product. A product without a
// default recipe projects to zero; a missing product is an error.
func (s *Service) ProjectProduct(ctx context.Context, tenantID, productID uuid.UUID) (*Projection, error) {
	p, err := s.product(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	rc, err := s.defaultRecipe(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("load default recipe: %w", err)
	}

	metrics.RecordProjection("single")
	return Project(p, rc), nil
}

// ProjectAll projects every product flagged as having a recipe. Products whose
// default recipe cannot be resolved are left out.
func (s *Service) ProjectAll(ctx context.Context, tenantID uuid.UUID) ([]*Projection, error) {
	products, err := s.store.ListRecipeProducts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list recipe products: %w", err)
	}

	projections := make([]*Projection, 0, len(products))
	for _, p := range products {
		rc, err := s.defaultRecipe(ctx, tenantID, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load default recipe for %s: %w", p.ID, err)
		}
		if rc == nil {
			s.logger.Debug("product flagged with recipe has no default",
				zap.String("product_id", p.ID.String()),
			)
			continue
		}
		projections = append(projections, Project(p, rc))
	}

	metrics.RecordProjection("batch")
	return projections, nil
}

// CheckAvailability reports whether quantity units of the product can be made now.
func (s *Service) CheckAvailability(ctx context.Context, tenantID, productID uuid.UUID, quantity decimal.Decimal) (*Availability, error) {
	if !quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	if _, err := s.product(ctx, tenantID, productID); err != nil {
		return nil, err
	}

	rc, err := s.defaultRecipe(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("load default recipe: %w", err)
	}
	if rc == nil {
		return nil, fmt.Errorf("%w: no default recipe for product %s", ErrRecipeNotFound, productID)
	}

	metrics.RecordProjection("availability")
	return CheckAvailability(rc, quantity), nil
}

// ListRecipes returns every recipe version of a product.
func (s *Service) ListRecipes(ctx context.Context, tenantID, productID uuid.UUID) ([]*db.Recipe, error) {
	if _, err := s.product(ctx, tenantID, productID); err != nil {
		return nil, err
	}
	return s.store.ListRecipesForProduct(ctx, tenantID, productID)
}

// newLine validates an input line against its ingredient product and snapshots its cost.
func (s *Service) newLine(ctx context.Context, tenantID, productID uuid.UUID, in IngredientInput) (*db.RecipeIngredient, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if in.IngredientID == productID {
		return nil, fmt.Errorf("%w: a product cannot be its own ingredient", ErrDuplicateIngredient)
	}

	ing, err := s.store.GetProduct(ctx, tenantID, in.IngredientID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, in.IngredientID)
	}
	if err != nil {
		return nil, err
	}

	unit := in.Unit
	if unit == "" {
		unit = ing.Unit
	}

	return &db.RecipeIngredient{
		ID:              uuid.New(),
		IngredientID:    ing.ID,
		Quantity:        in.Quantity,
		Unit:            unit,
		IsOptional:      in.IsOptional,
		UnitCost:        ing.CostPrice,
		TotalCost:       ing.CostPrice.Mul(in.Quantity),
		IngredientName:  ing.Name,
		IngredientStock: ing.CurrentStock,
		IngredientCost:  ing.CostPrice,
	}, nil
}

// CreateRecipe adds version 1 of a recipe. The first recipe of a product becomes its default.
func (s *Service) CreateRecipe(ctx context.Context, tenantID, productID uuid.UUID, in CreateRecipeInput) (*db.Recipe, error) {
	p, err := s.product(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListRecipesForProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}

	name := in.Name
	if name == "" {
		name = p.Name
	}

	rc := &db.Recipe{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProductID: productID,
		Name:      name,
		Version:   1,
		IsDefault: len(existing) == 0,
		IsActive:  true,
	}

	seen := make(map[uuid.UUID]bool, len(in.Ingredients))
	for i, input := range in.Ingredients {
		if seen[input.IngredientID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIngredient, input.IngredientID)
		}
		seen[input.IngredientID] = true

		line, err := s.newLine(ctx, tenantID, productID, input)
		if err != nil {
			return nil, err
		}
		line.RecipeID = rc.ID
		line.Position = i
		rc.Ingredients = append(rc.Ingredients, line)
	}

	rc.EstimatedCost = RollupCost(rc.Ingredients)
	rc.TotalCost = rc.EstimatedCost

	if err := s.store.CreateRecipe(ctx, rc); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrDuplicateIngredient
		}
		return nil, fmt.Errorf("create recipe: %w", err)
	}

	s.logger.Info("recipe created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("recipe_id", rc.ID.String()),
		zap.Bool("is_default", rc.IsDefault),
	)
	return rc, nil
}

// AddIngredient appends a line and recomputes the recipe cost.
func (s *Service) AddIngredient(ctx context.Context, tenantID, recipeID uuid.UUID, in IngredientInput) (*db.Recipe, error) {
	rc, err := s.recipe(ctx, tenantID, recipeID)
	if err != nil {
		return nil, err
	}

	for _, line := range rc.Ingredients {
		if line.IngredientID == in.IngredientID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIngredient, in.IngredientID)
		}
	}

	line, err := s.newLine(ctx, tenantID, rc.ProductID, in)
	if err != nil {
		return nil, err
	}
	line.RecipeID = rc.ID

	if err := s.store.AddIngredient(ctx, line); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrDuplicateIngredient
		}
		return nil, fmt.Errorf("add ingredient: %w", err)
	}

	return s.refreshCost(ctx, tenantID, recipeID)
}

// UpdateIngredient patches a line, keeping its unit cost snapshot, and recomputes the recipe cost.
func (s *Service) UpdateIngredient(ctx context.Context, tenantID, recipeID, lineID uuid.UUID, in UpdateIngredientInput) (*db.Recipe, error) {
	rc, err := s.recipe(ctx, tenantID, recipeID)
	if err != nil {
		return nil, err
	}

	line := findLine(rc, lineID)
	if line == nil {
		return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, lineID)
	}

	if in.Quantity != nil {
		if !in.Quantity.IsPositive() {
			return nil, ErrInvalidQuantity
		}
		line.Quantity = *in.Quantity
	}
	if in.Unit != nil && *in.Unit != "" {
		line.Unit = *in.Unit
	}
	if in.IsOptional != nil {
		line.IsOptional = *in.IsOptional
	}
	line.TotalCost = line.UnitCost.Mul(line.Quantity)

	if err := s.store.UpdateIngredient(ctx, line); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, lineID)
		}
		return nil, fmt.Errorf("update ingredient: %w", err)
	}

	return s.refreshCost(ctx, tenantID, recipeID)
}

// RemoveIngredient deletes a line and recomputes the recipe cost.
func (s *Service) RemoveIngredient(ctx context.Context, tenantID, recipeID, lineID uuid.UUID) (*db.Recipe, error) {
	rc, err := s.recipe(ctx, tenantID, recipeID)
	if err != nil {
		return nil, err
	}
	if findLine(rc, lineID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, lineID)
	}

	if err := s.store.RemoveIngredient(ctx, recipeID, lineID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, lineID)
		}
		return nil, fmt.Errorf("remove ingredient: %w", err)
	}

	return s.refreshCost(ctx, tenantID, recipeID)
}

// refreshCost reloads the recipe so the rollup sees current ingredient prices.
func (s *Service) refreshCost(ctx context.Context, tenantID, recipeID uuid.UUID) (*db.Recipe, error) {
	rc, err := s.recipe(ctx, tenantID, recipeID)
	if err != nil {
		return nil, err
	}

	cost := RollupCost(rc.Ingredients)
	if err := s.store.UpdateRecipeCost(ctx, rc.ID, cost, cost); err != nil {
		return nil, fmt.Errorf("update recipe cost: %w", err)
	}

	rc.EstimatedCost = cost
	rc.TotalCost = cost
	return rc, nil
}

// DuplicateRecipe copies a recipe into the next version. Lines are copied
// verbatim, cost snapshots included. The copy is active and not default.
func (s *Service) DuplicateRecipe(ctx context.Context, tenantID, recipeID uuid.UUID) (*db.Recipe, error) {
	src, err := s.recipe(ctx, tenantID, recipeID)
	if err != nil {
		return nil, err
	}

	dup := &db.Recipe{
		ID:            uuid.New(),
		TenantID:      src.TenantID,
		ProductID:     src.ProductID,
		Name:          src.Name + " (copy)",
		Version:       src.Version + 1,
		IsDefault:     false,
		IsActive:      true,
		EstimatedCost: src.EstimatedCost,
		TotalCost:     src.TotalCost,
	}

	for _, line := range src.Ingredients {
		cp := *line
		cp.ID = uuid.New()
		cp.RecipeID = dup.ID
		dup.Ingredients = append(dup.Ingredients, &cp)
	}

	if err := s.store.CreateRecipe(ctx, dup); err != nil {
		return nil, fmt.Errorf("duplicate recipe: %w", err)
	}

	s.logger.Info("recipe duplicated",
		zap.String("source_id", src.ID.String()),
		zap.String("recipe_id", dup.ID.String()),
		zap.Int("version", dup.Version),
	)
	return dup, nil
}

// SetDefaultRecipe makes the recipe its product's only default in one atomic write.
func (s *Service) SetDefaultRecipe(ctx context.Context, tenantID, recipeID uuid.UUID) (*db.Recipe, error) {
	err := s.store.SetDefaultRecipe(ctx, tenantID, recipeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeID)
	}
	if err != nil {
		return nil, err
	}
	return s.recipe(ctx, tenantID, recipeID)
}

func findLine(rc *db.Recipe, lineID uuid.UUID) *db.RecipeIngredient {
	for _, line := range rc.Ingredients {
		if line.ID == lineID {
			return line
		}
	}
	return nil
}

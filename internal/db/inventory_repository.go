package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrConflict is returned when a write violates a uniqueness rule.
var ErrConflict = errors.New("record conflicts with an existing row")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isConflict reports a unique (23505) or exclusion (23P01) constraint
// violation. The one-default-recipe rule is an exclusion constraint.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" || pgErr.Code == "23P01"
}

// InventoryRepository handles products, recipes and recipe ingredient lines.
type InventoryRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *DB, logger *zap.Logger) *InventoryRepository {
	return &InventoryRepository{
		db:     db,
		logger: logger,
	}
}

const productColumns = `
	id, tenant_id, sku, name, unit, current_stock, cost_price, sale_price,
	has_recipe, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.SKU,
		&p.Name,
		&p.Unit,
		&p.CurrentStock,
		&p.CostPrice,
		&p.SalePrice,
		&p.HasRecipe,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct retrieves a product by ID within a tenant
func (r *InventoryRepository) GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND tenant_id = $2`

	p, err := scanProduct(r.db.Pool().QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

// ListRecipeProducts returns every active product flagged as having a recipe.
func (r *InventoryRepository) ListRecipeProducts(ctx context.Context, tenantID uuid.UUID) ([]*Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE tenant_id = $1 AND has_recipe = TRUE AND is_active = TRUE
		ORDER BY name ASC`

	rows, err := r.db.Pool().Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query recipe products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return products, nil
}

const recipeColumns = `
	id, tenant_id, product_id, name, version, is_default, is_active,
	estimated_cost, total_cost, created_at, updated_at`

func scanRecipe(row pgx.Row) (*Recipe, error) {
	var rc Recipe
	err := row.Scan(
		&rc.ID,
		&rc.TenantID,
		&rc.ProductID,
		&rc.Name,
		&rc.Version,
		&rc.IsDefault,
		&rc.IsActive,
		&rc.EstimatedCost,
		&rc.TotalCost,
		&rc.CreatedAt,
		&rc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *InventoryRepository) loadIngredients(ctx context.Context, q querier, recipe *Recipe) error {
	query := `
		SELECT
			ri.id, ri.recipe_id, ri.ingredient_id, ri.quantity, ri.unit,
			ri.is_optional, ri.unit_cost, ri.total_cost, ri.position,
			p.name, p.current_stock, p.cost_price
		FROM recipe_ingredients ri
		JOIN products p ON p.id = ri.ingredient_id
		WHERE ri.recipe_id = $1
		ORDER BY ri.position ASC, ri.id ASC
	`

	rows, err := q.Query(ctx, query, recipe.ID)
	if err != nil {
		return fmt.Errorf("query recipe ingredients: %w", err)
	}
	defer rows.Close()

	recipe.Ingredients = recipe.Ingredients[:0]
	for rows.Next() {
		var line RecipeIngredient
		err := rows.Scan(
			&line.ID,
			&line.RecipeID,
			&line.IngredientID,
			&line.Quantity,
			&line.Unit,
			&line.IsOptional,
			&line.UnitCost,
			&line.TotalCost,
			&line.Position,
			&line.IngredientName,
			&line.IngredientStock,
			&line.IngredientCost,
		)
		if err != nil {
			return fmt.Errorf("scan recipe ingredient: %w", err)
		}
		recipe.Ingredients = append(recipe.Ingredients, &line)
	}

	return rows.Err()
}

// GetRecipe retrieves a recipe and its ingredient lines.
func (r *InventoryRepository) GetRecipe(ctx context.Context, tenantID, id uuid.UUID) (*Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE id = $1 AND tenant_id = $2`

	recipe, err := scanRecipe(r.db.Pool().QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recipe %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query recipe: %w", err)
	}

	if err := r.loadIngredients(ctx, r.db.Pool(), recipe); err != nil {
		return nil, err
	}
	return recipe, nil
}

// GetDefaultRecipe returns the active default recipe of a product, or ErrNotFound.
func (r *InventoryRepository) GetDefaultRecipe(ctx context.Context, tenantID, productID uuid.UUID) (*Recipe, error) {
	query := `SELECT ` + recipeColumns + `
		FROM recipes
		WHERE product_id = $1 AND tenant_id = $2 AND is_default = TRUE AND is_active = TRUE`

	recipe, err := scanRecipe(r.db.Pool().QueryRow(ctx, query, productID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("default recipe for product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query default recipe: %w", err)
	}

	if err := r.loadIngredients(ctx, r.db.Pool(), recipe); err != nil {
		return nil, err
	}
	return recipe, nil
}

// ListRecipesForProduct returns every version of a product's recipe, newest first.
func (r *InventoryRepository) ListRecipesForProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]*Recipe, error) {
	query := `SELECT ` + recipeColumns + `
		FROM recipes
		WHERE product_id = $1 AND tenant_id = $2
		ORDER BY version DESC, created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, productID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}

	var recipes []*Recipe
	for rows.Next() {
		rc, err := scanRecipe(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, rc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	for _, rc := range recipes {
		if err := r.loadIngredients(ctx, r.db.Pool(), rc); err != nil {
			return nil, err
		}
	}

	return recipes, nil
}

// CreateRecipe inserts a recipe with its lines and flags the product as having a recipe.
// A default recipe clears the flag on its siblings in the same transaction.
func (r *InventoryRepository) CreateRecipe(ctx context.Context, recipe *Recipe) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if recipe.IsDefault {
			_, err := tx.Exec(ctx,
				`UPDATE recipes SET is_default = FALSE, updated_at = NOW() WHERE product_id = $1 AND tenant_id = $2 AND is_default`,
				recipe.ProductID, recipe.TenantID,
			)
			if err != nil {
				return fmt.Errorf("clear sibling defaults: %w", err)
			}
		}

		insertRecipe := `
			INSERT INTO recipes (
				id, tenant_id, product_id, name, version, is_default, is_active,
				estimated_cost, total_cost
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, insertRecipe,
			recipe.ID,
			recipe.TenantID,
			recipe.ProductID,
			recipe.Name,
			recipe.Version,
			recipe.IsDefault,
			recipe.IsActive,
			recipe.EstimatedCost,
			recipe.TotalCost,
		).Scan(&recipe.CreatedAt, &recipe.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert recipe: %w", err)
		}

		for _, line := range recipe.Ingredients {
			line.RecipeID = recipe.ID
			if err := insertIngredient(ctx, tx, line); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET has_recipe = TRUE, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`,
			recipe.ProductID, recipe.TenantID,
		)
		if err != nil {
			return fmt.Errorf("flag product has_recipe: %w", err)
		}
		return nil
	})
	if isConflict(err) {
		return fmt.Errorf("create recipe: %w", ErrConflict)
	}
	if err != nil {
		r.logger.Error("failed to create recipe",
			zap.Error(err),
			zap.String("recipe_id", recipe.ID.String()),
		)
		return err
	}

	r.logger.Info("recipe created",
		zap.String("recipe_id", recipe.ID.String()),
		zap.String("product_id", recipe.ProductID.String()),
		zap.Int("version", recipe.Version),
		zap.Int("ingredients", len(recipe.Ingredients)),
	)
	return nil
}

func insertIngredient(ctx context.Context, q querier, line *RecipeIngredient) error {
	query := `
		INSERT INTO recipe_ingredients (
			id, recipe_id, ingredient_id, quantity, unit, is_optional,
			unit_cost, total_cost, position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.Exec(ctx, query,
		line.ID,
		line.RecipeID,
		line.IngredientID,
		line.Quantity,
		line.Unit,
		line.IsOptional,
		line.UnitCost,
		line.TotalCost,
		line.Position,
	)
	if err != nil {
		return fmt.Errorf("insert recipe ingredient: %w", err)
	}
	return nil
}

// AddIngredient appends a line to a recipe. The position is assigned after the current last line.
func (r *InventoryRepository) AddIngredient(ctx context.Context, line *RecipeIngredient) error {
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM recipe_ingredients WHERE recipe_id = $1`,
		line.RecipeID,
	).Scan(&line.Position)
	if err != nil {
		return fmt.Errorf("next ingredient position: %w", err)
	}

	err = insertIngredient(ctx, r.db.Pool(), line)
	if isConflict(err) {
		return fmt.Errorf("ingredient %s already on recipe: %w", line.IngredientID, ErrConflict)
	}
	return err
}

// UpdateIngredient rewrites quantity, unit, optional flag and cost snapshot of a line.
func (r *InventoryRepository) UpdateIngredient(ctx context.Context, line *RecipeIngredient) error {
	query := `
		UPDATE recipe_ingredients
		SET quantity = $1, unit = $2, is_optional = $3, unit_cost = $4, total_cost = $5
		WHERE id = $6 AND recipe_id = $7
	`
	result, err := r.db.Pool().Exec(ctx, query,
		line.Quantity,
		line.Unit,
		line.IsOptional,
		line.UnitCost,
		line.TotalCost,
		line.ID,
		line.RecipeID,
	)
	if err != nil {
		return fmt.Errorf("update recipe ingredient: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recipe ingredient %s: %w", line.ID, ErrNotFound)
	}
	return nil
}

// RemoveIngredient deletes a line from a recipe.
func (r *InventoryRepository) RemoveIngredient(ctx context.Context, recipeID, lineID uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`DELETE FROM recipe_ingredients WHERE id = $1 AND recipe_id = $2`,
		lineID, recipeID,
	)
	if err != nil {
		return fmt.Errorf("delete recipe ingredient: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recipe ingredient %s: %w", lineID, ErrNotFound)
	}
	return nil
}

// UpdateRecipeCost stores the recomputed cost rollup of a recipe.
func (r *InventoryRepository) UpdateRecipeCost(ctx context.Context, recipeID uuid.UUID, estimated, total decimal.Decimal) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE recipes SET estimated_cost = $1, total_cost = $2, updated_at = NOW() WHERE id = $3`,
		estimated, total, recipeID,
	)
	if err != nil {
		return fmt.Errorf("update recipe cost: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recipe %s: %w", recipeID, ErrNotFound)
	}
	return nil
}

// SetDefaultRecipe makes recipeID the only default recipe of its product.
//
// A single UPDATE flips every sibling at once, so concurrent callers can never
// leave zero or two defaults behind. The exclusion constraint on recipes is
// deferred, which lets the statement pass through the intermediate state.
func (r *InventoryRepository) SetDefaultRecipe(ctx context.Context, tenantID, recipeID uuid.UUID) error {
	query := `
		UPDATE recipes
		SET is_default = (id = $1), updated_at = NOW()
		WHERE tenant_id = $2
		  AND product_id = (SELECT product_id FROM recipes WHERE id = $1 AND tenant_id = $2)
	`

	result, err := r.db.Pool().Exec(ctx, query, recipeID, tenantID)
	if isConflict(err) {
		// A concurrent flip on the same product committed first.
		return fmt.Errorf("set default recipe %s: %w", recipeID, ErrConflict)
	}
	if err != nil {
		r.logger.Error("failed to set default recipe",
			zap.Error(err),
			zap.String("recipe_id", recipeID.String()),
		)
		return fmt.Errorf("set default recipe: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recipe %s: %w", recipeID, ErrNotFound)
	}

	r.logger.Info("default recipe set", zap.String("recipe_id", recipeID.String()))
	return nil
}

// Package inventory computes how many units of a product current stock can
// produce, and keeps recipe versions and their cost rollups consistent.
package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lalithlochan/opsuite/internal/db"
)

// LimitingIngredient is the non-optional line that caps production.
type LimitingIngredient struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Available decimal.Decimal `json:"available"`
	Required  decimal.Decimal `json:"required"`
}

// IngredientView is one recipe line as reported in a projection.
type IngredientView struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Required   decimal.Decimal `json:"required"`
	Available  decimal.Decimal `json:"available"`
	Unit       string          `json:"unit"`
	IsOptional bool            `json:"isOptional"`
}

// RecipeView identifies the recipe a projection was computed from.
// ID is nil when the product has no active default recipe.
type RecipeView struct {
	ID          *uuid.UUID       `json:"id"`
	Name        string           `json:"name"`
	Ingredients []IngredientView `json:"ingredients"`
}

// Projection is a best-effort snapshot: stock is read without locks and may
// change before the caller acts on it.
type Projection struct {
	ProductID          uuid.UUID           `json:"productId"`
	ProductName        string              `json:"productName"`
	CanMake            int64               `json:"canMake"`
	LimitingIngredient *LimitingIngredient `json:"limitingIngredient"`
	Recipe             RecipeView          `json:"recipe"`
}

// Project runs the min-ratio bill-of-materials computation for one product.
//
// Optional lines and lines requiring a quantity <= 0 never constrain.
// Ties go to the earliest line. When nothing constrains, CanMake is 0 and
// there is no limiting ingredient.
func Project(product *db.Product, recipe *db.Recipe) *Projection {
	p := &Projection{
		ProductID:   product.ID,
		ProductName: product.Name,
		Recipe:      RecipeView{Ingredients: []IngredientView{}},
	}
	if recipe == nil {
		return p
	}

	id := recipe.ID
	p.Recipe.ID = &id
	p.Recipe.Name = recipe.Name

	var limiting *db.RecipeIngredient
	var best decimal.Decimal

	for _, line := range recipe.Ingredients {
		p.Recipe.Ingredients = append(p.Recipe.Ingredients, IngredientView{
			ID:         line.IngredientID,
			Name:       line.IngredientName,
			Required:   line.Quantity,
			Available:  line.IngredientStock,
			Unit:       line.Unit,
			IsOptional: line.IsOptional,
		})

		if line.IsOptional || !line.Quantity.IsPositive() {
			continue
		}

		units := unitsProducible(line.IngredientStock, line.Quantity)
		if limiting == nil || units.LessThan(best) {
			limiting = line
			best = units
		}
	}

	if limiting == nil {
		return p
	}

	p.CanMake = best.IntPart()
	p.LimitingIngredient = &LimitingIngredient{
		ID:        limiting.IngredientID,
		Name:      limiting.IngredientName,
		Available: limiting.IngredientStock,
		Required:  limiting.Quantity,
	}
	return p
}

// unitsProducible is floor(stock / perUnit), with negative stock counted as none.
func unitsProducible(stock, perUnit decimal.Decimal) decimal.Decimal {
	if !stock.IsPositive() {
		return decimal.Zero
	}
	q, _ := stock.QuoRem(perUnit, 0)
	return q
}

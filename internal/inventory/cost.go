package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/lalithlochan/opsuite/internal/db"
)

// RollupCost sums current ingredient cost times line quantity over every line.
// Line snapshots are ignored; this always reflects today's prices.
func RollupCost(lines []*db.RecipeIngredient) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.IngredientCost.Mul(line.Quantity))
	}
	return total
}

package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lalithlochan/opsuite/internal/db"
)

// Availability reports whether a production run fits in current stock.
// Missing lists every short ingredient, not only the first.
type Availability struct {
	Success bool     `json:"success"`
	Missing []string `json:"missing"`
}

// CheckAvailability scales every non-optional line by quantity and compares
// the result with the ingredient's current stock.
func CheckAvailability(recipe *db.Recipe, quantity decimal.Decimal) *Availability {
	result := &Availability{Missing: []string{}}

	for _, line := range recipe.Ingredients {
		if line.IsOptional {
			continue
		}

		required := line.Quantity.Mul(quantity)
		if line.IngredientStock.LessThan(required) {
			result.Missing = append(result.Missing, shortage(line, required))
		}
	}

	result.Success = len(result.Missing) == 0
	return result
}

func shortage(line *db.RecipeIngredient, required decimal.Decimal) string {
	return fmt.Sprintf("%s: required %s %s, available %s %s",
		line.IngredientName,
		required.String(), line.Unit,
		line.IngredientStock.String(), line.Unit,
	)
}

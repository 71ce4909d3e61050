package inventory

import "errors"

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrRecipeNotFound      = errors.New("recipe not found")
	ErrIngredientNotFound  = errors.New("ingredient not found")
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrDuplicateIngredient = errors.New("ingredient already on recipe")
)

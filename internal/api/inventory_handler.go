package api

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/inventory"
)

// GetProjection handles GET /v1/products/{id}/projection
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	projection, err := h.inventory.ProjectProduct(r.Context(), tenantFromContext(r.Context()), productID)
	if err != nil {
		h.writeServiceError(w, r, err, "project product")
		return
	}
	h.writeJSON(w, http.StatusOK, projection)
}

// ListProjections handles GET /v1/projections
func (h *Handler) ListProjections(w http.ResponseWriter, r *http.Request) {
	projections, err := h.inventory.ProjectAll(r.Context(), tenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "project all")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":  projections,
		"count": len(projections),
	})
}

type availabilityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// CheckAvailability handles POST /v1/products/{id}/availability
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req availabilityRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.inventory.CheckAvailability(r.Context(), tenantFromContext(r.Context()), productID, req.Quantity)
	if err != nil {
		h.writeServiceError(w, r, err, "check availability")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListRecipes handles GET /v1/products/{id}/recipes
func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	recipes, err := h.inventory.ListRecipes(r.Context(), tenantFromContext(r.Context()), productID)
	if err != nil {
		h.writeServiceError(w, r, err, "list recipes")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":  recipes,
		"count": len(recipes),
	})
}

// CreateRecipe handles POST /v1/products/{id}/recipes
func (h *Handler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req inventory.CreateRecipeInput
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name is required")
		return
	}

	recipe, err := h.inventory.CreateRecipe(r.Context(), tenantFromContext(r.Context()), productID, req)
	if err != nil {
		h.writeServiceError(w, r, err, "create recipe")
		return
	}

	h.logger.Info("recipe created",
		zap.String("recipe_id", recipe.ID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("version", recipe.Version),
	)
	h.writeJSON(w, http.StatusCreated, recipe)
}

// AddIngredient handles POST /v1/recipes/{id}/ingredients
func (h *Handler) AddIngredient(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req inventory.IngredientInput
	if !h.decode(w, r, &req) {
		return
	}

	recipe, err := h.inventory.AddIngredient(r.Context(), tenantFromContext(r.Context()), recipeID, req)
	if err != nil {
		h.writeServiceError(w, r, err, "add ingredient")
		return
	}
	h.writeJSON(w, http.StatusCreated, recipe)
}

// UpdateIngredient handles PATCH /v1/recipes/{id}/ingredients/{ingredientId}
func (h *Handler) UpdateIngredient(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := h.pathUUID(w, r, "ingredientId")
	if !ok {
		return
	}

	var req inventory.UpdateIngredientInput
	if !h.decode(w, r, &req) {
		return
	}

	recipe, err := h.inventory.UpdateIngredient(r.Context(), tenantFromContext(r.Context()), recipeID, lineID, req)
	if err != nil {
		h.writeServiceError(w, r, err, "update ingredient")
		return
	}
	h.writeJSON(w, http.StatusOK, recipe)
}

// RemoveIngredient handles DELETE /v1/recipes/{id}/ingredients/{ingredientId}
func (h *Handler) RemoveIngredient(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := h.pathUUID(w, r, "ingredientId")
	if !ok {
		return
	}

	recipe, err := h.inventory.RemoveIngredient(r.Context(), tenantFromContext(r.Context()), recipeID, lineID)
	if err != nil {
		h.writeServiceError(w, r, err, "remove ingredient")
		return
	}
	h.writeJSON(w, http.StatusOK, recipe)
}

// DuplicateRecipe handles POST /v1/recipes/{id}/duplicate
func (h *Handler) DuplicateRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	recipe, err := h.inventory.DuplicateRecipe(r.Context(), tenantFromContext(r.Context()), recipeID)
	if err != nil {
		h.writeServiceError(w, r, err, "duplicate recipe")
		return
	}

	h.logger.Info("recipe duplicated",
		zap.String("source_id", recipeID.String()),
		zap.String("recipe_id", recipe.ID.String()),
		zap.Int("version", recipe.Version),
	)
	h.writeJSON(w, http.StatusCreated, recipe)
}

// SetDefaultRecipe handles POST /v1/recipes/{id}/default
func (h *Handler) SetDefaultRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	recipe, err := h.inventory.SetDefaultRecipe(r.Context(), tenantFromContext(r.Context()), recipeID)
	if err != nil {
		h.writeServiceError(w, r, err, "set default recipe")
		return
	}
	h.writeJSON(w, http.StatusOK, recipe)
}

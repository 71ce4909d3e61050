package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lalithlochan/opsuite/internal/ability"
	"github.com/lalithlochan/opsuite/internal/redis"
)

// Routes returns the /v1 router. limiter may be nil.
func (h *Handler) Routes(limiter *redis.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(TenantMiddleware)
	r.Use(RateLimitMiddleware(limiter, h.logger, TenantKeyFunc))

	r.With(RequireAbility(ability.ActionRead, ability.SubjectProduct)).Get("/projections", h.ListProjections)

	r.Route("/products/{id}", func(r chi.Router) {
		r.With(RequireAbility(ability.ActionRead, ability.SubjectProduct)).Get("/projection", h.GetProjection)
		r.With(RequireAbility(ability.ActionRead, ability.SubjectProduct)).Post("/availability", h.CheckAvailability)
		r.With(RequireAbility(ability.ActionRead, ability.SubjectRecipe)).Get("/recipes", h.ListRecipes)
		r.With(RequireAbility(ability.ActionCreate, ability.SubjectRecipe)).Post("/recipes", h.CreateRecipe)
	})

	r.Route("/recipes/{id}", func(r chi.Router) {
		r.With(RequireAbility(ability.ActionUpdate, ability.SubjectRecipe)).Post("/ingredients", h.AddIngredient)
		r.With(RequireAbility(ability.ActionUpdate, ability.SubjectRecipe)).Patch("/ingredients/{ingredientId}", h.UpdateIngredient)
		r.With(RequireAbility(ability.ActionUpdate, ability.SubjectRecipe)).Delete("/ingredients/{ingredientId}", h.RemoveIngredient)
		r.With(RequireAbility(ability.ActionCreate, ability.SubjectRecipe)).Post("/duplicate", h.DuplicateRecipe)
		r.With(RequireAbility(ability.ActionUpdate, ability.SubjectRecipe)).Post("/default", h.SetDefaultRecipe)
	})

	r.With(RequireAbility(ability.ActionCreate, ability.SubjectTemplate)).Post("/templates", h.CreateTemplate)
	r.With(RequireAbility(ability.ActionCreate, ability.SubjectRule)).Post("/rules", h.CreateRule)
	r.With(RequireAbility(ability.ActionRead, ability.SubjectRule)).Get("/rules/{id}", h.GetRule)
	r.With(RequireAbility(ability.ActionCreate, ability.SubjectEvent)).Post("/events", h.SubmitEvent)

	r.With(RequireAbility(ability.ActionCreate, ability.SubjectNotification)).Post("/notifications", h.SendNotification)
	r.With(RequireAbility(ability.ActionRead, ability.SubjectNotification)).Get("/notifications", h.ListNotifications)
	r.With(RequireAbility(ability.ActionRead, ability.SubjectNotification)).Get("/notifications/{id}", h.GetNotification)

	return r
}

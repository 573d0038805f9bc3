package engine

import "github.com/gofiber/fiber/v2"

func RegisterRuleRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	rules := app.Group("/api/_rules", middleware...)

	rules.Post("/compile", h.Compile)
	rules.Post("/lint", h.Lint)
	rules.Get("/vocabulary", h.Vocabulary)
	rules.Get("/templates/:id/aliases", h.Aliases)
}

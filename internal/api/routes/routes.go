// Package routes wires the C7 read API surface (spec §4.7) onto a
// Fiber router. API-key admission, CORS, and rate limiting are the
// documented external ingress contract (spec §1/§6) and are not
// implemented here.
package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tucentropdf/engine-v2/internal/api/handlers"
)

// Setup registers the submit/status/result/ocr endpoints under /api/v1.
func Setup(app *fiber.App, h *handlers.Handlers) {
	api := app.Group("/api/v1")

	api.Post("/jobs", h.Submit)
	api.Get("/jobs/:id/status", h.Status)
	api.Get("/jobs/:id/result", h.Result)
	api.Get("/jobs/:id/ocr", h.Ocr)

	debug := app.Group("/debug/circuit-breakers")
	debug.Get("/", h.CircuitBreakers)
	debug.Post("/reset", h.ResetCircuitBreakers)
	debug.Post("/:name/force-open", h.ForceOpenCircuitBreaker)
}

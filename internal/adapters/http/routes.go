package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/lighthouse-verify/internal/metrics"
)

// NewApp wires the routes onto a fiber app.
func NewApp(h *RunHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "lighthouse-verify",
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	// Fiber <-> Net/HTTP Adaptor
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	runs := v1.Group("/runs")
	runs.Get("/", h.ListRuns)
	runs.Post("/", h.StartRun)
	runs.Get("/:id", h.GetRun)

	return app
}

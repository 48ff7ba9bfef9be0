package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/pullover/internal/observability"
)

// ReadinessCheck reports whether the relay can accept messages.
type ReadinessCheck func() error

func RegisterHealthRoutes(app fiber.Router, ready ReadinessCheck, metrics *observability.Metrics) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(ready))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(ready ReadinessCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ready != nil {
			if err := ready(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "not_ready",
					"reason": err.Error(),
				})
			}
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ready",
		})
	}
}

package app

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vidforge/vidforge/internal/api/middleware"
	"github.com/vidforge/vidforge/internal/api/v1/handlers"
	v1 "github.com/vidforge/vidforge/internal/api/v1/routes"
	"github.com/vidforge/vidforge/internal/logger"
)

// NewApp wires the HTTP surface: middleware, versioned routes and the
// websocket streams.
func NewApp(job *handlers.JobHandler, webhook *handlers.WebhookHandler, stream *handlers.StreamHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "vidforge",
		ErrorHandler: errorHandler,
	})

	// Middleware (e.g., logging, panic recovery)
	app.Use(recover.New())
	app.Use(middleware.Logger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Register versioned routes
	v1.Register(app, job, webhook, stream)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		logger.Errorf("Unhandled request error on %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{
		"slug":  "error",
		"error": err.Error(),
	})
}

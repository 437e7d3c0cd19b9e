package v1

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/vidforge/vidforge/internal/api/v1/handlers"
)

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, job *handlers.JobHandler, webhook *handlers.WebhookHandler) {
	// Read endpoints are the hot path for dashboards; cap per-client rate
	readLimiter := limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	})

	// Job routes
	jobs := router.Group("/jobs")
	jobs.Post("/", job.EnqueueJob)
	jobs.Get("/", readLimiter, job.ListJobs)
	// Registered before /:id so "failed" is not captured as a job id
	jobs.Delete("/failed", job.ClearFailedJobs)
	jobs.Get("/:id", readLimiter, job.GetJob)
	jobs.Delete("/:id", job.DeleteJob)
	jobs.Post("/:id/cancel", job.CancelJob)
	jobs.Post("/:id/retry", job.RetryJob)
	jobs.Post("/:id/reconcile", job.ReconcileJob)
	jobs.Get("/:id/events", readLimiter, job.GetJobEvents)

	// Queue routes
	queue := router.Group("/queue")
	queue.Get("/stats", readLimiter, job.GetStats)
	queue.Post("/pause", job.PauseQueue)
	queue.Post("/resume", job.ResumeQueue)

	// Webhook routes, called by generation workers and the render service
	webhooks := router.Group("/webhooks")
	webhooks.Post("/steps", webhook.StepWebhook)
	webhooks.Post("/render", webhook.RenderWebhook)
}

// RegisterStreams registers the websocket routes outside the /api/v1 group.
func RegisterStreams(app *fiber.App, stream *handlers.StreamHandler) {
	app.Use("/ws", stream.Upgrade)
	app.Get("/ws/queue", stream.QueueStream())
	app.Get("/ws/jobs/:id", stream.JobStream())
}

// Register registers the v1 routes
func Register(app *fiber.App, job *handlers.JobHandler, webhook *handlers.WebhookHandler, stream *handlers.StreamHandler) {
	// API v1 routes
	v1Group := app.Group("/api/v1")
	SetupRoutes(v1Group, job, webhook)
	RegisterStreams(app, stream)
}

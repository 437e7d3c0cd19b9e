package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/vidforge/vidforge/internal/services"
	"github.com/vidforge/vidforge/internal/types"
)

// JobHandler handles HTTP requests for the job lifecycle
type JobHandler struct {
	queue  *services.Queue
	render *services.Render
}

// NewJobHandler creates a new instance of JobHandler
func NewJobHandler(queue *services.Queue, render *services.Render) *JobHandler {
	return &JobHandler{queue: queue, render: render}
}

// EnqueueJob handles creating a new generation job
func (h *JobHandler) EnqueueJob(c *fiber.Ctx) error {
	var params types.GenerationParams
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("Invalid request body"))
	}
	if err := params.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}

	job, err := h.queue.Enqueue(c.Context(), params)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(success(job))
}

// GetJob handles retrieving one job by id
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("Job id is required"))
	}

	job, fresh, err := h.queue.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if !fresh {
		c.Set("X-Stale-Read", "true")
	}
	return c.JSON(success(job))
}

// ListJobs handles retrieving all jobs, newest first
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	jobs, err := h.queue.List(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(fiber.Map{"jobs": jobs, "count": len(jobs)}))
}

// GetStats handles retrieving the aggregate queue stats
func (h *JobHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.queue.Stats(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(stats))
}

// CancelJob handles cancelling a job in any non-terminal state
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	job, err := h.queue.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(job))
}

// RetryJob handles re-enqueueing a failed job
func (h *JobHandler) RetryJob(c *fiber.Ctx) error {
	job, err := h.queue.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(job))
}

// DeleteJob handles permanently removing a terminal job
func (h *JobHandler) DeleteJob(c *fiber.Ctx) error {
	if err := h.queue.Delete(c.Context(), c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ClearFailedJobs handles deleting every failed job at once
func (h *JobHandler) ClearFailedJobs(c *fiber.Ctx) error {
	cleared, err := h.queue.ClearFailed(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(fiber.Map{"cleared": cleared}))
}

// PauseQueue handles pausing worker dispatch
func (h *JobHandler) PauseQueue(c *fiber.Ctx) error {
	if err := h.queue.Pause(c.Context()); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(fiber.Map{"paused": true}))
}

// ResumeQueue handles resuming worker dispatch
func (h *JobHandler) ResumeQueue(c *fiber.Ctx) error {
	if err := h.queue.Resume(c.Context()); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(fiber.Map{"paused": false}))
}

// ReconcileJob handles manually reconciling a job against the render
// service, for when webhooks were missed
func (h *JobHandler) ReconcileJob(c *fiber.Ctx) error {
	job, err := h.render.Reconcile(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(job))
}

// GetJobEvents handles retrieving a job's audit trail
func (h *JobHandler) GetJobEvents(c *fiber.Ctx) error {
	id := c.Params("id")
	limit := c.QueryInt("limit", 0)

	// Confirm the job exists so unknown ids are a 404, not an empty list
	if _, _, err := h.queue.Get(c.Context(), id); err != nil {
		return serviceError(c, err)
	}

	events, err := h.queue.Events(c.Context(), id, limit)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(success(fiber.Map{"events": events, "count": len(events)}))
}

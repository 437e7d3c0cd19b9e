package handlers

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/vidforge/vidforge/internal/services"
	"github.com/vidforge/vidforge/internal/types"
)

// WebhookHandler receives the worker step stream and the render service
// status stream.
type WebhookHandler struct {
	ingest *services.Ingest
}

// NewWebhookHandler creates a new instance of WebhookHandler
func NewWebhookHandler(ingest *services.Ingest) *WebhookHandler {
	return &WebhookHandler{ingest: ingest}
}

// StepWebhook handles a worker step callback. Ordering rejections answer
// 200 with success:false and a reason code; the job is never mutated on
// rejection.
func (h *WebhookHandler) StepWebhook(c *fiber.Ctx) error {
	var ev types.StepEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(WebhookResponse{
			Success: false, Message: "Invalid request body",
		})
	}
	if ev.JobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(WebhookResponse{
			Success: false, Message: "job_id is required",
		})
	}

	job, change, err := h.ingest.HandleStepEvent(c.Context(), ev)
	if err != nil {
		if reason := types.RejectReason(err); reason != "" {
			return c.JSON(WebhookResponse{
				Success: false, Message: err.Error(), Reason: reason,
			})
		}
		if errors.Is(err, types.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(WebhookResponse{
				Success: false, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(WebhookResponse{
			Success: false, Message: err.Error(),
		})
	}

	msg := "step applied"
	if change.Noop {
		msg = "job already terminal, event discarded"
	}
	return c.JSON(WebhookResponse{
		Success: true, Message: msg, JobID: job.ID, Status: job.Status.String(),
	})
}

// RenderWebhook handles a render service status callback. Unknown render
// identifiers are a 404 and never create a job.
func (h *WebhookHandler) RenderWebhook(c *fiber.Ctx) error {
	var ev types.RenderEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(WebhookResponse{
			Success: false, Message: "Invalid request body",
		})
	}
	if ev.RenderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(WebhookResponse{
			Success: false, Message: "render_id is required",
		})
	}

	job, _, err := h.ingest.HandleRenderEvent(c.Context(), ev)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(WebhookResponse{
				Success: false, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(WebhookResponse{
			Success: false, Message: err.Error(),
		})
	}

	return c.JSON(WebhookResponse{
		Success: true, JobID: job.ID, Status: job.Status.String(),
	})
}

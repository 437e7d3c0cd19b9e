// Package handlers provides HTTP request handling
package handlers

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/vidforge/vidforge/internal/types"
)

// Slug identifies the outcome class of a response
type Slug string

// Response outcome slugs
const (
	SuccessSlug      Slug = "success"
	ErrorSlug        Slug = "error"
	InvalidInputSlug Slug = "invalid-input"
	NotFoundSlug     Slug = "not-found"
	InvalidStateSlug Slug = "invalid-state"
	ServerErrorSlug  Slug = "server-error"
)

// Response is the envelope for every control endpoint
type Response struct {
	Slug  Slug        `json:"slug"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func success(data interface{}) Response {
	return Response{Slug: SuccessSlug, Data: data}
}

func errInvalidInput(msg string) Response {
	return Response{Slug: InvalidInputSlug, Error: msg}
}

func errNotFound(msg string) Response {
	return Response{Slug: NotFoundSlug, Error: msg}
}

func errInvalidState(msg string) Response {
	return Response{Slug: InvalidStateSlug, Error: msg}
}

func errServer(msg string) Response {
	return Response{Slug: ServerErrorSlug, Error: msg}
}

// WebhookResponse acknowledges inbound webhooks. Validation rejections
// answer 200 with success:false and a reason code so well-behaved
// senders do not retry-storm.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// serviceError maps service-layer sentinel errors onto an HTTP response.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errNotFound(err.Error()))
	case errors.Is(err, types.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(errInvalidState(err.Error()))
	case errors.Is(err, types.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(errServer(err.Error()))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
}

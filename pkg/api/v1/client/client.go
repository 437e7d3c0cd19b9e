// Package client provides the API client for interacting with the vidforge API
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/vidforge/vidforge/internal/db/models"
	"github.com/vidforge/vidforge/internal/types"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// DefaultBaseURL is the default API endpoint
const DefaultBaseURL = "http://localhost:8080"

// Client is the interface for API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (map[string]string, error)

	// Job endpoints
	CreateJob(ctx context.Context, params types.GenerationParams) (types.Job, error)
	GetJob(ctx context.Context, id string) (types.Job, error)
	ListJobs(ctx context.Context) ([]types.Job, error)
	CancelJob(ctx context.Context, id string) (types.Job, error)
	RetryJob(ctx context.Context, id string) (types.Job, error)
	DeleteJob(ctx context.Context, id string) error
	ReconcileJob(ctx context.Context, id string) (types.Job, error)
	GetJobEvents(ctx context.Context, id string) ([]models.JobEvent, error)

	// Queue endpoints
	GetStats(ctx context.Context) (types.QueueStats, error)
	ClearFailed(ctx context.Context) (int, error)
	PauseQueue(ctx context.Context) error
	ResumeQueue(ctx context.Context) error
}

var _ Client = &APIClient{}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Validate the base URL
	_, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	return &APIClient{
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
	}, nil
}

// envelope mirrors the control endpoints' response wrapper
type envelope struct {
	Slug  string          `json:"slug"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	case http.MethodDelete:
		agent = fiber.Delete(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	// Set timeout from context or client default
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set("Content-Type", "application/json")
	agent.Set("Accept", "application/json")

	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the HTTP request and decodes the envelope's data field
// into v when a target is provided.
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		var env envelope
		if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
			return &fiber.Error{Code: statusCode, Message: env.Error}
		}
		return &fiber.Error{Code: statusCode, Message: string(body)}
	}

	if v == nil || len(body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if len(env.Data) == 0 {
		// Bare payloads (e.g. /health) are not wrapped
		return json.Unmarshal(body, v)
	}
	return json.Unmarshal(env.Data, v)
}

// executeRequest creates an agent, sends the request, and processes the response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	agent, err := c.createAgent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	return c.doRequest(agent, response)
}

// HealthCheck checks the API health status
func (c *APIClient) HealthCheck(ctx context.Context) (map[string]string, error) {
	var health map[string]string
	err := c.executeRequest(ctx, http.MethodGet, "/health", nil, &health)
	return health, err
}

// CreateJob submits a new generation job to the queue
func (c *APIClient) CreateJob(ctx context.Context, params types.GenerationParams) (types.Job, error) {
	var job types.Job
	err := c.executeRequest(ctx, http.MethodPost, "/api/v1/jobs", params, &job)
	return job, err
}

// GetJob returns one job by id
func (c *APIClient) GetJob(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	err := c.executeRequest(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

// ListJobs returns all known jobs
func (c *APIClient) ListJobs(ctx context.Context) ([]types.Job, error) {
	var out struct {
		Jobs []types.Job `json:"jobs"`
	}
	err := c.executeRequest(ctx, http.MethodGet, "/api/v1/jobs", nil, &out)
	return out.Jobs, err
}

// CancelJob cancels a pending or in-flight job
func (c *APIClient) CancelJob(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	err := c.executeRequest(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, &job)
	return job, err
}

// RetryJob requeues a failed job
func (c *APIClient) RetryJob(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	err := c.executeRequest(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/retry", nil, &job)
	return job, err
}

// DeleteJob removes a terminal job and its audit trail
func (c *APIClient) DeleteJob(ctx context.Context, id string) error {
	return c.executeRequest(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(id), nil, nil)
}

// ReconcileJob polls the render service and re-syncs the job's state
func (c *APIClient) ReconcileJob(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	err := c.executeRequest(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/reconcile", nil, &job)
	return job, err
}

// GetJobEvents returns the audit trail for one job
func (c *APIClient) GetJobEvents(ctx context.Context, id string) ([]models.JobEvent, error) {
	var out struct {
		Events []models.JobEvent `json:"events"`
	}
	err := c.executeRequest(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id)+"/events", nil, &out)
	return out.Events, err
}

// GetStats returns aggregate queue counters
func (c *APIClient) GetStats(ctx context.Context) (types.QueueStats, error) {
	var stats types.QueueStats
	err := c.executeRequest(ctx, http.MethodGet, "/api/v1/queue/stats", nil, &stats)
	return stats, err
}

// ClearFailed removes all failed jobs and returns how many were cleared
func (c *APIClient) ClearFailed(ctx context.Context) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	err := c.executeRequest(ctx, http.MethodDelete, "/api/v1/jobs/failed", nil, &out)
	return out.Cleared, err
}

// PauseQueue stops dispatching pending jobs
func (c *APIClient) PauseQueue(ctx context.Context) error {
	return c.executeRequest(ctx, http.MethodPost, "/api/v1/queue/pause", nil, nil)
}

// ResumeQueue restarts dispatching pending jobs
func (c *APIClient) ResumeQueue(ctx context.Context) error {
	return c.executeRequest(ctx, http.MethodPost, "/api/v1/queue/resume", nil, nil)
}

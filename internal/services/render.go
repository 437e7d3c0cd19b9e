package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vidforge/vidforge/internal/logger"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/internal/types"
)

// DefaultRenderPollTimeout bounds one poll of the external service.
const DefaultRenderPollTimeout = 15 * time.Second

// RenderOptions configures the render service client.
type RenderOptions struct {
	// BaseURL of the external render service API
	BaseURL string
	// APIKey sent as a bearer token
	APIKey string
	// Timeout per poll request
	Timeout time.Duration
}

// renderApplier is the single transition entry point shared by the
// webhook and poll paths.
type renderApplier interface {
	ApplyRender(ctx context.Context, job *types.Job, ev types.RenderEvent) (*types.Job, types.RenderChange, error)
}

// Render correlates jobs to external render identifiers and drives
// status transitions while a render is in flight. Webhooks are the
// primary channel; Reconcile is the manual/poll fallback for when they
// are missed.
type Render struct {
	store   *store.Store
	client  *http.Client
	baseURL string
	apiKey  string

	applier renderApplier

	mu       sync.RWMutex
	watching map[string]string // render id -> job id
}

// NewRender creates the render monitor.
func NewRender(st *store.Store, opts RenderOptions) *Render {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultRenderPollTimeout
	}
	return &Render{
		store:    st,
		client:   &http.Client{Timeout: opts.Timeout},
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		watching: make(map[string]string),
	}
}

func (r *Render) setApplier(a renderApplier) {
	r.applier = a
}

// Watch starts monitoring a render identifier for a job. Idempotent.
func (r *Render) Watch(renderID, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watching[renderID]; !ok {
		r.watching[renderID] = jobID
		logger.Infof("Watching render %s for job %s", renderID, jobID)
	}
}

// Unwatch stops monitoring a render identifier.
func (r *Render) Unwatch(renderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watching, renderID)
}

// Watching reports whether the identifier is currently monitored.
func (r *Render) Watching(renderID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watching[renderID]
	return ok
}

// WatchCount returns the number of renders in flight.
func (r *Render) WatchCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watching)
}

// renderPollResponse is the external service's status document.
type renderPollResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	URL          string `json:"url"`
	ErrorMessage string `json:"error_message"`
}

// Poll queries the external service for the current status of a render.
// Failures are surfaced to the caller and never alter job state.
func (r *Render) Poll(ctx context.Context, renderID string) (types.RenderEvent, error) {
	url := fmt.Sprintf("%s/v1/renders/%s", r.baseURL, renderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.RenderEvent{}, err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return types.RenderEvent{}, fmt.Errorf("render service poll failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return types.RenderEvent{}, fmt.Errorf("%w: render %s", types.ErrNotFound, renderID)
	}
	if resp.StatusCode != http.StatusOK {
		return types.RenderEvent{}, fmt.Errorf("render service returned %d", resp.StatusCode)
	}

	var body renderPollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.RenderEvent{}, fmt.Errorf("failed to decode render status: %w", err)
	}
	return types.RenderEvent{
		RenderID: renderID,
		Status:   body.Status,
		URL:      body.URL,
		Error:    body.ErrorMessage,
	}, nil
}

// Reconcile polls the external service for a job's render and applies
// the result through the same transition the webhook would have taken.
// Every non-terminal job referencing the identifier is updated, in case
// reconciliation races a retry. Returns the updated record of the
// requested job.
func (r *Render) Reconcile(ctx context.Context, jobID string) (*types.Job, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RenderID == "" {
		return nil, fmt.Errorf("%w: job %s has no render id", types.ErrInvalidState, jobID)
	}

	r.Watch(job.RenderID, job.ID)

	ev, err := r.Poll(ctx, job.RenderID)
	if err != nil {
		return nil, err
	}

	jobs, err := r.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	result := job
	for _, candidate := range jobs {
		if candidate.RenderID != job.RenderID || candidate.Status.Terminal() {
			continue
		}
		updated, _, err := r.applier.ApplyRender(ctx, candidate, ev)
		if err != nil {
			return nil, err
		}
		if candidate.ID == jobID {
			result = updated
		}
	}
	return result, nil
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	fiber "github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/hub"
	"github.com/vidforge/vidforge/internal/services"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/internal/types"
	"github.com/vidforge/vidforge/internal/worker"
)

// noopRunner satisfies worker.Runner for handler tests; dispatch never
// runs here.
type noopRunner struct{}

type noopHandle struct{}

func (noopHandle) Kill() error { return nil }
func (noopHandle) Wait() error { select {} }

func (noopRunner) Start(_ context.Context, _ *types.Job) (worker.Handle, error) {
	return noopHandle{}, nil
}

// apiFixture wires the full HTTP surface onto in-memory backends.
type apiFixture struct {
	app    *fiber.App
	queue  *services.Queue
	ingest *services.Ingest
	store  *store.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := store.NewWithClient(rdb)
	c := cache.New()
	h := hub.New()
	queue := services.NewQueue(st, c, nil, h, noopRunner{}, services.QueueOptions{WorkerID: "test"})
	render := services.NewRender(st, services.RenderOptions{BaseURL: "http://render.invalid"})
	ingest := services.NewIngest(queue, render)

	job := NewJobHandler(queue, render)
	webhook := NewWebhookHandler(ingest)

	app := fiber.New()
	jobs := app.Group("/api/v1/jobs")
	jobs.Post("/", job.EnqueueJob)
	jobs.Get("/", job.ListJobs)
	jobs.Delete("/failed", job.ClearFailedJobs)
	jobs.Get("/:id", job.GetJob)
	jobs.Delete("/:id", job.DeleteJob)
	jobs.Post("/:id/cancel", job.CancelJob)
	jobs.Post("/:id/retry", job.RetryJob)
	jobs.Get("/:id/events", job.GetJobEvents)
	app.Get("/api/v1/queue/stats", job.GetStats)
	app.Post("/api/v1/queue/pause", job.PauseQueue)
	app.Post("/api/v1/queue/resume", job.ResumeQueue)
	app.Post("/api/v1/webhooks/steps", webhook.StepWebhook)
	app.Post("/api/v1/webhooks/render", webhook.RenderWebhook)

	return &apiFixture{app: app, queue: queue, ingest: ingest, store: st}
}

func (f *apiFixture) request(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func (f *apiFixture) enqueue(t *testing.T) types.Job {
	t.Helper()
	resp := f.request(t, http.MethodPost, "/api/v1/jobs/", types.GenerationParams{
		Country: "US", Platform: "youtube", Genre: "horror", ContentType: "story",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var env struct {
		Slug string    `json:"slug"`
		Data types.Job `json:"data"`
	}
	decodeResponse(t, resp, &env)
	require.Equal(t, string(SuccessSlug), env.Slug)
	return env.Data
}

// claim moves the job into processing, mimicking the dispatcher.
func (f *apiFixture) claim(t *testing.T) *types.Job {
	t.Helper()
	job, err := f.queue.Claim(context.Background(), "test")
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

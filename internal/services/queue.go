// Package services contains the orchestration logic: the queue manager,
// webhook ingestion, render monitoring, and worker dispatch.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/db/models"
	"github.com/vidforge/vidforge/internal/db/repos"
	"github.com/vidforge/vidforge/internal/hub"
	"github.com/vidforge/vidforge/internal/logger"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/internal/types"
	"github.com/vidforge/vidforge/internal/worker"
)

// Queue defaults
const (
	// DefaultReadTimeout bounds store reads on public-facing read paths;
	// on expiry the path falls back to cache
	DefaultReadTimeout = 10 * time.Second
	// DefaultStuckThreshold declares a claimed job stuck when its last
	// update is older than this
	DefaultStuckThreshold = 10 * time.Minute
)

// QueueOptions configures a Queue.
type QueueOptions struct {
	ReadTimeout time.Duration
	WorkerID    string
}

// Queue is the job lifecycle authority. All job mutations flow through
// it or through the ingest service; read paths never mutate.
type Queue struct {
	store  *store.Store
	cache  *cache.Cache
	events *repos.EventRepository
	hub    *hub.Hub
	runner worker.Runner

	readTimeout time.Duration
	workerID    string

	// releaseRender drops the render monitor's watch for a render id,
	// wired in by the ingest service.
	releaseRender func(renderID string)

	mu      sync.Mutex
	handles map[string]worker.Handle
}

// NewQueue creates the queue manager. events may be nil when the audit
// database is disabled; audit failures never fail the mutation they
// describe.
func NewQueue(st *store.Store, c *cache.Cache, events *repos.EventRepository, h *hub.Hub, runner worker.Runner, opts QueueOptions) *Queue {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WorkerID == "" {
		host, _ := os.Hostname()
		opts.WorkerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	return &Queue{
		store:       st,
		cache:       c,
		events:      events,
		hub:         h,
		runner:      runner,
		readTimeout: opts.ReadTimeout,
		workerID:    opts.WorkerID,
		handles:     make(map[string]worker.Handle),
	}
}

// WorkerID returns the identity this process claims jobs under.
func (q *Queue) WorkerID() string {
	return q.workerID
}

// Enqueue creates a pending job and appends it to the pending list.
// Worker dispatch is a separate, asynchronous concern.
func (q *Queue) Enqueue(ctx context.Context, params types.GenerationParams) (*types.Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	job := &types.Job{
		ID:        uuid.NewString(),
		Status:    types.JobStatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	q.cache.Invalidate(cache.StatsKey)
	q.audit(ctx, job, "enqueued", 0, params)
	logger.InfoWithFields("Job enqueued", map[string]interface{}{
		"job_id": job.ID, "platform": params.Platform, "genre": params.Genre,
	})
	return job, nil
}

// Get returns a job, preferring a fresh cache entry and falling back to
// a stale one when the store is unreachable. The second return value
// reports freshness.
func (q *Queue) Get(ctx context.Context, id string) (*types.Job, bool, error) {
	key := cache.JobKey(id)
	if v, fresh, ok := q.cache.Get(key); ok && fresh {
		return v.(*types.Job), true, nil
	}

	// The epoch guard keeps this fill from re-caching a record a webhook
	// mutated and invalidated while the store read was in flight.
	epoch := q.cache.Epoch(key)
	rctx, cancel := context.WithTimeout(ctx, q.readTimeout)
	defer cancel()
	job, err := q.store.GetJob(rctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, false, err
		}
		if v, _, ok := q.cache.Get(key); ok {
			logger.Warnf("Serving stale job %s, store unavailable: %v", id, err)
			return v.(*types.Job), false, nil
		}
		return nil, false, err
	}
	q.cache.PutIfEpoch(key, epoch, job, cache.JobTTL(job.Status))
	return job, true, nil
}

// List returns every job, newest first.
func (q *Queue) List(ctx context.Context) ([]*types.Job, error) {
	rctx, cancel := context.WithTimeout(ctx, q.readTimeout)
	defer cancel()
	jobs, err := q.store.ListJobs(rctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Stats returns the aggregate queue stats. Cache-first; concurrent
// misses recompute once; stale values serve when the store is down.
func (q *Queue) Stats(ctx context.Context) (types.QueueStats, error) {
	if v, fresh, ok := q.cache.Get(cache.StatsKey); ok && fresh {
		return v.(types.QueueStats), nil
	}

	v, err := q.cache.Load(cache.StatsKey, func() (interface{}, error) {
		epoch := q.cache.Epoch(cache.StatsKey)
		rctx, cancel := context.WithTimeout(ctx, q.readTimeout)
		defer cancel()
		stats, err := q.store.CountStatuses(rctx)
		if err != nil {
			return nil, err
		}
		stats.ActiveWorkers = q.activeWorkers()
		if paused, perr := q.store.IsPaused(rctx); perr == nil {
			stats.Paused = paused
		}
		q.cache.PutIfEpoch(cache.StatsKey, epoch, stats, cache.StatsTTL)
		return stats, nil
	})
	if err != nil {
		if stale, _, ok := q.cache.Get(cache.StatsKey); ok {
			logger.Warnf("Serving stale queue stats, store unavailable: %v", err)
			return stale.(types.QueueStats), nil
		}
		return types.QueueStats{}, err
	}
	return v.(types.QueueStats), nil
}

// Claim atomically moves the head of the pending list into processing,
// stamping the worker id and start time. Returns nil when nothing is
// pending.
func (q *Queue) Claim(ctx context.Context, workerID string) (*types.Job, error) {
	id, err := q.store.ClaimPending(ctx)
	if err != nil || id == "" {
		return nil, err
	}
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	job.Status = types.JobStatusProcessing
	job.WorkerID = workerID
	job.StartedAt = &now
	job.UpdatedAt = now
	job.CurrentStep = "Claimed by worker"
	if err := q.store.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	q.cache.Invalidate(cache.JobKey(job.ID), cache.StatsKey)
	q.audit(ctx, job, "claimed", 0, nil)
	return job, nil
}

// Update persists mutated fields and records an audit entry.
func (q *Queue) Update(ctx context.Context, job *types.Job) error {
	job.UpdatedAt = time.Now()
	if err := q.store.SaveJob(ctx, job); err != nil {
		return err
	}
	q.cache.Invalidate(cache.JobKey(job.ID), cache.StatsKey)
	q.audit(ctx, job, "updated", job.CurrentStepNumber, nil)
	return nil
}

// FastUpdate is the hot-path variant used by webhook ingestion: same
// postcondition as Update, no audit write of its own.
func (q *Queue) FastUpdate(ctx context.Context, job *types.Job) error {
	job.UpdatedAt = time.Now()
	if err := q.store.SaveJob(ctx, job); err != nil {
		return err
	}
	q.cache.Invalidate(cache.JobKey(job.ID), cache.StatsKey)
	return nil
}

// Cancel stops a job. Pending jobs leave the queue; claimed jobs get
// their worker killed. Cancelling an already-terminal job is a no-op
// returning the current record.
func (q *Queue) Cancel(ctx context.Context, id string) (*types.Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	wasPending := job.Status == types.JobStatusPending
	if !wasPending {
		q.killHandle(job.ID)
	}

	// Release the render correlation too, so a late render webhook for
	// this identifier finds nothing to apply.
	if job.RenderID != "" {
		if err := q.store.UnbindRender(ctx, job.RenderID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	job.Status = types.JobStatusCancelled
	job.CancelledAt = &now
	job.UpdatedAt = now
	job.CurrentStep = "Cancelled"

	if wasPending {
		err = q.store.SaveJobRemovePending(ctx, job)
	} else {
		err = q.store.SaveJobRemoveProcessing(ctx, job)
	}
	if err != nil {
		return nil, err
	}
	if job.RenderID != "" && q.releaseRender != nil {
		q.releaseRender(job.RenderID)
	}

	q.cache.Invalidate(cache.JobKey(job.ID), cache.StatsKey)
	q.audit(ctx, job, "cancelled", 0, nil)
	delta := types.JobDelta{
		Type: types.DeltaJobCancelled, JobID: job.ID,
		Progress: job.Progress, Status: job.Status, Timestamp: now,
	}
	q.hub.PublishJob(job.ID, delta)
	q.hub.PublishGlobal(delta)
	logger.Infof("Job %s cancelled", job.ID)
	return job, nil
}

// Retry re-enqueues a failed job with reset progress fields. Only legal
// for failed jobs.
func (q *Queue) Retry(ctx context.Context, id string) (*types.Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusFailed {
		return nil, fmt.Errorf("%w: cannot retry job in status %s", types.ErrInvalidState, job.Status)
	}

	// The old render binding must go, or a stale render webhook could
	// smear the previous attempt's state onto the new one.
	if job.RenderID != "" {
		if err := q.store.UnbindRender(ctx, job.RenderID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	job.Status = types.JobStatusPending
	job.Progress = 0
	job.Error = ""
	job.CurrentStep = ""
	job.CurrentStepNumber = 0
	job.LastStepSequence = 0
	job.StepDetails = nil
	job.StepDuration = nil
	job.WorkerID = ""
	job.RenderID = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	job.CancelledAt = nil
	job.FailedAt = nil
	job.VideoURL = ""
	job.RetryCount++
	job.UpdatedAt = now

	if err := q.store.SaveJobRequeue(ctx, job); err != nil {
		return nil, err
	}
	q.cache.Invalidate(cache.JobKey(job.ID), cache.StatsKey)
	q.audit(ctx, job, "retried", 0, nil)
	q.hub.PublishJob(job.ID, types.JobDelta{
		Type: types.DeltaJobRetried, JobID: job.ID,
		Progress: 0, Status: job.Status, Timestamp: now,
	})
	logger.Infof("Job %s retried (attempt %d)", job.ID, job.RetryCount+1)
	return job, nil
}

// Delete permanently removes a terminal job and its audit trail.
func (q *Queue) Delete(ctx context.Context, id string) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: cannot delete job in status %s", types.ErrInvalidState, job.Status)
	}
	if err := q.store.DeleteJob(ctx, job); err != nil {
		return err
	}
	if q.events != nil {
		if err := q.events.DeleteByJob(ctx, id); err != nil {
			logger.Warnf("Failed to delete audit trail for job %s: %v", id, err)
		}
	}
	q.cache.Invalidate(cache.JobKey(id), cache.StatsKey)
	logger.Infof("Job %s deleted", id)
	return nil
}

// ClearFailed deletes every job on the failed list and returns the count.
func (q *Queue) ClearFailed(ctx context.Context) (int, error) {
	ids, err := q.store.ListIDs(ctx, store.FailedListKey())
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, id := range ids {
		if err := q.Delete(ctx, id); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

// Pause stops the dispatcher from claiming new jobs. In-flight jobs run
// to completion.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.store.SetPaused(ctx, true); err != nil {
		return err
	}
	q.cache.Invalidate(cache.StatsKey)
	logger.Info("Queue paused")
	return nil
}

// Resume re-enables dispatching.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.store.SetPaused(ctx, false); err != nil {
		return err
	}
	q.cache.Invalidate(cache.StatsKey)
	logger.Info("Queue resumed")
	return nil
}

// Paused reports whether dispatching is paused.
func (q *Queue) Paused(ctx context.Context) (bool, error) {
	return q.store.IsPaused(ctx)
}

// CleanupStuck fails claimed jobs whose last update exceeds the liveness
// threshold. Guards against a worker crashing without reporting.
func (q *Queue) CleanupStuck(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	now := time.Now()
	stuck, err := q.store.StuckProcessing(ctx, threshold, now)
	if err != nil {
		return 0, err
	}
	for _, job := range stuck {
		q.killHandle(job.ID)
		job.Status = types.JobStatusFailed
		job.Error = fmt.Sprintf("no progress for more than %s, worker presumed dead", threshold)
		job.FailedAt = &now
		job.UpdatedAt = now
		job.CurrentStep = "Timed out"
		if err := q.store.SaveJobMoveToFailed(ctx, job); err != nil {
			return 0, err
		}
		q.cache.Invalidate(cache.JobKey(job.ID), cache.StatsKey)
		q.audit(ctx, job, "timeout", job.CurrentStepNumber, nil)
		delta := types.JobDelta{
			Type: types.DeltaWorkflowFailed, JobID: job.ID,
			Progress: job.Progress, Status: job.Status,
			Error: job.Error, Timestamp: now,
		}
		q.hub.PublishJob(job.ID, delta)
		q.hub.PublishGlobal(delta)
		logger.Warnf("Job %s declared stuck and failed", job.ID)
	}
	return len(stuck), nil
}

// Events returns the audit trail for a job.
func (q *Queue) Events(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	if q.events == nil {
		return nil, nil
	}
	return q.events.ListByJob(ctx, jobID, limit)
}

// registerHandle tracks the running worker for a claimed job.
func (q *Queue) registerHandle(jobID string, h worker.Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handles[jobID] = h
}

func (q *Queue) releaseHandle(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.handles, jobID)
}

// killHandle signals the job's worker, if this process owns one.
func (q *Queue) killHandle(jobID string) {
	q.mu.Lock()
	h, ok := q.handles[jobID]
	q.mu.Unlock()
	if ok {
		if err := h.Kill(); err != nil {
			logger.Warnf("Failed to kill worker for job %s: %v", jobID, err)
		}
	}
}

func (q *Queue) activeWorkers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handles)
}

// audit appends a durable event; failures are logged, never propagated,
// so a flaky audit database cannot take down ingestion.
func (q *Queue) audit(ctx context.Context, job *types.Job, eventType string, stepNumber int, detail interface{}) {
	if q.events == nil {
		return
	}
	event := &models.JobEvent{
		JobID:      job.ID,
		EventType:  eventType,
		Status:     job.Status.String(),
		Progress:   job.Progress,
		StepNumber: stepNumber,
		OccurredAt: job.UpdatedAt,
	}
	if detail != nil {
		if raw, err := json.Marshal(detail); err == nil {
			event.Detail = raw
		}
	}
	if err := q.events.Append(ctx, event); err != nil {
		logger.Warnf("Failed to append audit event for job %s: %v", job.ID, err)
	}
}

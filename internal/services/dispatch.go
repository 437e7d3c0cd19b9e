package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/logger"
	"github.com/vidforge/vidforge/internal/types"
)

// Dispatch defaults
const (
	DefaultDispatchConcurrency = 2
	dispatchBackoff            = time.Second
)

// LaunchDispatcher launches a goroutine that claims pending jobs and
// spawns workers for them, honoring the pause flag and the concurrency
// cap. The orchestrator never blocks on a worker; completion arrives via
// the webhook boundary.
func LaunchDispatcher(ctx context.Context, wg *sync.WaitGroup, q *Queue, concurrency int) {
	defer wg.Done()
	if concurrency <= 0 {
		concurrency = DefaultDispatchConcurrency
	}

	logger.Infof("Dispatcher started (worker id %s, concurrency %d)", q.workerID, concurrency)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Dispatcher received shutdown signal, stopping...")
			return
		default:
		}

		if q.activeWorkers() >= concurrency {
			time.Sleep(dispatchBackoff)
			continue
		}

		paused, err := q.store.IsPaused(ctx)
		if err != nil {
			logger.Errorf("Dispatcher error checking pause flag: %v", err)
			time.Sleep(dispatchBackoff)
			continue
		}
		if paused {
			time.Sleep(dispatchBackoff)
			continue
		}

		job, err := q.Claim(ctx, q.workerID)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Errorf("Dispatcher error claiming job: %v", err)
			}
			time.Sleep(dispatchBackoff)
			continue
		}
		if job == nil {
			time.Sleep(dispatchBackoff)
			continue
		}

		q.launch(ctx, job)
	}
}

// launch starts the worker process for a claimed job and watches its
// exit in the background.
func (q *Queue) launch(ctx context.Context, job *types.Job) {
	handle, err := q.runner.Start(ctx, job)
	if err != nil {
		logger.Errorf("Failed to start worker for job %s: %v", job.ID, err)
		q.failFromWorker(ctx, job.ID, err)
		return
	}
	q.registerHandle(job.ID, handle)
	logger.Infof("Worker launched for job %s", job.ID)

	go func() {
		waitErr := handle.Wait()
		q.releaseHandle(job.ID)
		if waitErr != nil {
			q.failFromWorker(context.Background(), job.ID, waitErr)
		}
	}()
}

// failFromWorker converts a worker process failure into a failed job,
// unless the job already reached a terminal state through the webhook
// path first (a cancel kill also lands here and must not resurrect the
// job).
func (q *Queue) failFromWorker(ctx context.Context, jobID string, cause error) {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		logger.Errorf("Cannot record worker failure for job %s: %v", jobID, err)
		return
	}
	if job.Status.Terminal() {
		return
	}

	now := time.Now()
	job.Status = types.JobStatusFailed
	job.Error = cause.Error()
	job.FailedAt = &now
	job.UpdatedAt = now
	job.CurrentStep = "Worker failed"
	if err := q.store.SaveJobMoveToFailed(ctx, job); err != nil {
		logger.Errorf("Failed to persist worker failure for job %s: %v", jobID, err)
		return
	}
	q.cache.Invalidate(cache.JobKey(job.ID), cache.StatsKey)
	q.audit(ctx, job, "worker_failed", job.CurrentStepNumber, nil)
	delta := types.JobDelta{
		Type: types.DeltaWorkflowFailed, JobID: job.ID,
		Progress: job.Progress, Status: job.Status,
		Error: job.Error, Timestamp: now,
	}
	q.hub.PublishJob(job.ID, delta)
	q.hub.PublishGlobal(delta)
}

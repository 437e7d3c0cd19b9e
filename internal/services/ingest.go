package services

import (
	"context"
	"time"

	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/logger"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/internal/types"
)

// Ingest receives the two webhook streams, validates ordering, derives
// the new job state through the pure transition functions, and applies
// it: persist, then audit, then invalidate, then broadcast, and only
// after validation has accepted the event.
type Ingest struct {
	queue  *Queue
	render *Render
}

// NewIngest wires the ingest service. The render monitor is told about
// newly discovered render identifiers and is called back by the poll
// path through ApplyRender.
func NewIngest(queue *Queue, render *Render) *Ingest {
	s := &Ingest{queue: queue, render: render}
	render.setApplier(s)
	queue.releaseRender = render.Unwatch
	return s
}

// HandleStepEvent processes one worker step webhook. Rejected events
// leave the job untouched and return a reason-coded error; events for
// already-terminal jobs are accepted and discarded.
func (s *Ingest) HandleStepEvent(ctx context.Context, ev types.StepEvent) (*types.Job, types.StepChange, error) {
	job, err := s.queue.store.GetJob(ctx, ev.JobID)
	if err != nil {
		return nil, types.StepChange{}, err
	}

	updated, change, err := types.ApplyStepEvent(*job, ev, time.Now())
	if err != nil {
		logger.WarnWithFields("Step event rejected", map[string]interface{}{
			"job_id": ev.JobID, "step": ev.StepNumber, "sequence": ev.Sequence,
			"reason": types.RejectReason(err),
		})
		return nil, change, err
	}
	if change.Noop {
		logger.Debugf("Discarding step event for terminal job %s", ev.JobID)
		return job, change, nil
	}

	if change.Failed {
		err = s.queue.store.SaveJobMoveToFailed(ctx, &updated)
	} else {
		err = s.queue.FastUpdate(ctx, &updated)
	}
	if err != nil {
		return nil, change, err
	}
	if change.Failed {
		// FastUpdate handles invalidation on the success path
		s.queue.cache.Invalidate(cache.JobKey(updated.ID), cache.StatsKey)
	}

	if change.RenderID != "" {
		if _, err := s.queue.store.BindRender(ctx, change.RenderID, updated.ID); err != nil {
			logger.Warnf("Failed to bind render %s to job %s: %v", change.RenderID, updated.ID, err)
		}
		s.render.Watch(change.RenderID, updated.ID)
	}

	s.queue.audit(ctx, &updated, change.Type, ev.StepNumber, ev)

	delta := types.JobDelta{
		Type:       change.Type,
		JobID:      updated.ID,
		StepNumber: ev.StepNumber,
		StepName:   ev.StepName,
		Progress:   updated.Progress,
		Status:     updated.Status,
		Error:      updated.Error,
		Timestamp:  updated.UpdatedAt,
	}
	s.queue.hub.PublishJob(updated.ID, delta)
	if updated.Status.Terminal() {
		s.queue.hub.PublishGlobal(delta)
	}
	return &updated, change, nil
}

// HandleRenderEvent processes one render service webhook. The job is
// found by render identifier; unknown identifiers are a NotFound, never
// a new job.
func (s *Ingest) HandleRenderEvent(ctx context.Context, ev types.RenderEvent) (*types.Job, types.RenderChange, error) {
	jobID, err := s.queue.store.JobIDByRender(ctx, ev.RenderID)
	if err != nil {
		return nil, types.RenderChange{}, err
	}
	job, err := s.queue.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, types.RenderChange{}, err
	}
	return s.ApplyRender(ctx, job, ev)
}

// ApplyRender applies one render status to one job. The webhook path and
// the render monitor's poll path both call exactly this, so the two
// triggers cannot diverge.
func (s *Ingest) ApplyRender(ctx context.Context, job *types.Job, ev types.RenderEvent) (*types.Job, types.RenderChange, error) {
	updated, change, err := types.ApplyRenderStatus(*job, ev, time.Now())
	if err != nil {
		return nil, change, err
	}
	if change.Noop {
		logger.Debugf("Discarding render event %s for terminal job %s", ev.Status, job.ID)
		return job, change, nil
	}

	switch change.Type {
	case types.DeltaRenderCompleted:
		err = s.queue.store.SaveJobRemoveProcessing(ctx, &updated)
	case types.DeltaRenderFailed:
		err = s.queue.store.SaveJobMoveToFailed(ctx, &updated)
	default:
		err = s.queue.store.SaveJob(ctx, &updated)
	}
	if err != nil {
		return nil, change, err
	}
	s.queue.cache.Invalidate(cache.JobKey(updated.ID), cache.StatsKey)

	if change.Terminal {
		s.render.Unwatch(ev.RenderID)
	}

	s.queue.audit(ctx, &updated, change.Type, 0, ev)

	delta := types.JobDelta{
		Type:      change.Type,
		JobID:     updated.ID,
		Progress:  updated.Progress,
		Status:    updated.Status,
		Error:     updated.Error,
		VideoURL:  updated.VideoURL,
		Timestamp: updated.UpdatedAt,
	}
	s.queue.hub.PublishJob(updated.ID, delta)
	if updated.Status.Terminal() {
		s.queue.hub.PublishGlobal(delta)
	}
	return &updated, change, nil
}

// Store exposes the job store for read-only webhook lookups in handlers.
func (s *Ingest) Store() *store.Store {
	return s.queue.store
}

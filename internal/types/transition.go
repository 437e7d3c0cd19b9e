package types

import (
	"fmt"
	"math"
	"time"
)

// The generation worker owns 0 to 85% of the progress band; the render
// service owns the rest. Values are presentation choices, but tests pin
// them, and monotonicity is guaranteed by taking the max with the
// previous value on every accepted update.
const (
	progressWorkflowStarted   = 5
	progressGenerationCeiling = 85
	progressRenderHandoff     = 95
	progressRenderPlanned     = 85
	progressRenderWaiting     = 87
	progressRenderCaptioning  = 88
	progressRenderActive      = 90
)

// StepChange describes what an accepted step event did to the job.
type StepChange struct {
	// Type is the stream delta type for broadcasting
	Type string
	// RenderID is set when this event carried a render identifier the job
	// did not have yet; the render monitor should start watching it
	RenderID string
	// Failed is true when the event moved the job to failed
	Failed bool
	// Noop is true when the job was already terminal and the event was
	// accepted but discarded
	Noop bool
}

// RenderChange describes what an accepted render event did to the job.
type RenderChange struct {
	Type string
	// Terminal is true when the event moved the job to completed or failed
	Terminal bool
	Noop     bool
}

// StepProgress computes the deterministic progress value for a workflow
// step. Progress is derived, never accumulated, so replays are harmless.
func StepProgress(step int, status string) int {
	done := step
	if status == StepStatusStarted {
		done = step - 1
	}
	return int(math.Round(float64(done) / GenerationSteps * progressGenerationCeiling))
}

// ApplyStepEvent validates a worker step event against the job and
// returns the updated job. The input job is not mutated; callers persist
// the returned copy only on acceptance.
//
// Validation order matters: existence and terminality first, then the
// sequence check, then step progression. The first failing check rejects
// the whole event.
func ApplyStepEvent(job Job, ev StepEvent, now time.Time) (Job, StepChange, error) {
	if job.Status.Terminal() {
		// Late callbacks for cancelled or finished jobs are discarded
		// without error so the worker does not retry-storm.
		return job, StepChange{Noop: true}, nil
	}

	if ev.Sequence < job.LastStepSequence {
		return Job{}, StepChange{}, fmt.Errorf(
			"%w: sequence %d < %d", ErrOutOfOrderSequence, ev.Sequence, job.LastStepSequence)
	}

	if ev.Status == StepStatusStarted && ev.StepNumber < job.CurrentStepNumber {
		return Job{}, StepChange{}, fmt.Errorf(
			"%w: step %d < %d", ErrBackwardProgression, ev.StepNumber, job.CurrentStepNumber)
	}

	if errMsg := stepFailure(ev); errMsg != "" {
		job.Status = JobStatusFailed
		job.Error = errMsg
		job.FailedAt = &now
		job.LastStepSequence = ev.Sequence
		job.CurrentStep = fmt.Sprintf("Failed: %s", errMsg)
		job.UpdatedAt = now
		return job, StepChange{Type: DeltaWorkflowFailed, Failed: true}, nil
	}

	job.LastStepSequence = ev.Sequence
	job.UpdatedAt = now

	change := StepChange{Type: DeltaStepUpdate}

	switch ev.StepNumber {
	case StepWorkflowStarted:
		job.Progress = maxInt(job.Progress, progressWorkflowStarted)
		job.CurrentStep = "Workflow started"
		change.Type = DeltaWorkflowStarted

	case StepWorkflowCompleted:
		job.Progress = maxInt(job.Progress, progressRenderHandoff)
		job.Status = JobStatusRendering
		job.CurrentStep = "Generation complete, rendering video"
		change.Type = DeltaWorkflowCompleted

	default:
		if ev.Status == StepStatusStarted {
			job.CurrentStepNumber = ev.StepNumber
		}
		job.Progress = maxInt(job.Progress, StepProgress(ev.StepNumber, ev.Status))
		job.CurrentStep = ev.StepName
		if ev.Status == StepStatusCompleted {
			detail := ev.DetailString("message")
			if detail == "" {
				detail = ev.StepName
			}
			job.StepDetails = withIntKey(job.StepDetails, ev.StepNumber, detail)
			if d := ev.DetailFloat("duration"); d > 0 {
				job.StepDuration = withIntDuration(job.StepDuration, ev.StepNumber, d)
			}
		}
	}

	// The render identifier can ride on any step's details, typically the
	// workflow-completed sentinel. First writer wins; a different value
	// later never overwrites it.
	if rid := ev.DetailString("render_id"); rid != "" && job.RenderID == "" {
		job.RenderID = rid
		change.RenderID = rid
	}

	return job, change, nil
}

// ApplyRenderStatus applies one render service status to the job. The
// webhook path and the poll path both funnel through here so their
// behavior cannot diverge. Events for terminal jobs are idempotent
// no-ops; duplicate deliveries of the same status change nothing beyond
// the re-broadcast.
func ApplyRenderStatus(job Job, ev RenderEvent, now time.Time) (Job, RenderChange, error) {
	if job.Status.Terminal() {
		return job, RenderChange{Noop: true}, nil
	}

	job.UpdatedAt = now

	switch ev.Status {
	case RenderStatusPlanned:
		job.Status = JobStatusRendering
		job.Progress = maxInt(job.Progress, progressRenderPlanned)
		job.CurrentStep = "Render queued"
		return job, RenderChange{Type: DeltaRenderPlanned}, nil

	case RenderStatusWaiting:
		job.Status = JobStatusRendering
		job.Progress = maxInt(job.Progress, progressRenderWaiting)
		job.CurrentStep = "Render waiting on dependency"
		return job, RenderChange{Type: DeltaRenderWaiting}, nil

	case RenderStatusTranscribing:
		job.Status = JobStatusRendering
		job.Progress = maxInt(job.Progress, progressRenderCaptioning)
		job.CurrentStep = "Generating captions"
		return job, RenderChange{Type: DeltaRenderCaptioning}, nil

	case RenderStatusRendering:
		job.Status = JobStatusRendering
		job.Progress = maxInt(job.Progress, progressRenderActive)
		job.CurrentStep = "Rendering video"
		return job, RenderChange{Type: DeltaRenderProgress}, nil

	case RenderStatusSucceeded:
		job.Status = JobStatusCompleted
		job.Progress = 100
		job.CurrentStep = "Completed"
		job.VideoURL = ev.URL
		job.CompletedAt = &now
		return job, RenderChange{Type: DeltaRenderCompleted, Terminal: true}, nil

	case RenderStatusFailed:
		job.Status = JobStatusFailed
		job.Error = ev.Error
		if job.Error == "" {
			job.Error = "render failed"
		}
		job.CurrentStep = "Render failed"
		job.FailedAt = &now
		return job, RenderChange{Type: DeltaRenderFailed, Terminal: true}, nil

	default:
		return Job{}, RenderChange{}, fmt.Errorf("unknown render status: %q", ev.Status)
	}
}

// stepFailure extracts the failure message from an event, or "" when the
// event does not indicate failure.
func stepFailure(ev StepEvent) string {
	if msg := ev.DetailString("error"); msg != "" {
		return msg
	}
	if ev.Status == StepStatusFailed {
		if ev.StepName != "" {
			return fmt.Sprintf("step %q failed", ev.StepName)
		}
		return fmt.Sprintf("step %d failed", ev.StepNumber)
	}
	return ""
}

// withIntKey copies the map before writing so ApplyStepEvent never
// mutates the caller's job through shared map references.
func withIntKey(m map[int]string, k int, v string) map[int]string {
	out := make(map[int]string, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

func withIntDuration(m map[int]float64, k int, v float64) map[int]float64 {
	out := make(map[int]float64, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

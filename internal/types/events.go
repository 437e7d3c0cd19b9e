package types

import "time"

// Step event statuses reported by the worker process
const (
	StepStatusStarted   = "started"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// Sentinel step numbers bracketing the generation workflow
const (
	// StepWorkflowStarted is emitted once before step 1
	StepWorkflowStarted = 0
	// StepWorkflowCompleted is emitted after the last generation step;
	// its details usually carry the render identifier
	StepWorkflowCompleted = 8
	// GenerationSteps is the number of real workflow steps
	GenerationSteps = 7
)

// StepEvent is the payload of the worker step webhook.
type StepEvent struct {
	JobID      string                 `json:"job_id"`
	StepNumber int                    `json:"step_number"`
	StepName   string                 `json:"step_name"`
	Status     string                 `json:"status"`
	Sequence   int64                  `json:"sequence"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// DetailString returns a string-typed detail field, or "" when absent.
func (e StepEvent) DetailString(key string) string {
	if e.Details == nil {
		return ""
	}
	s, _ := e.Details[key].(string)
	return s
}

// DetailFloat returns a numeric detail field, or 0 when absent.
func (e StepEvent) DetailFloat(key string) float64 {
	if e.Details == nil {
		return 0
	}
	f, _ := e.Details[key].(float64)
	return f
}

// Render service statuses. The external service reports these through its
// webhook; the poll path sees the same vocabulary.
const (
	RenderStatusPlanned      = "planned"
	RenderStatusWaiting      = "waiting"
	RenderStatusTranscribing = "transcribing"
	RenderStatusRendering    = "rendering"
	RenderStatusSucceeded    = "succeeded"
	RenderStatusFailed       = "failed"
)

// RenderEvent is the payload of the render service webhook and the
// normalized result of a poll.
type RenderEvent struct {
	RenderID string `json:"render_id"`
	Status   string `json:"status"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Stream delta types pushed through the realtime hub
const (
	DeltaHeartbeat         = "heartbeat"
	DeltaQueueStatus       = "status"
	DeltaStepUpdate        = "step_update"
	DeltaWorkflowStarted   = "workflow_started"
	DeltaWorkflowCompleted = "workflow_completed"
	DeltaWorkflowFailed    = "workflow_failed"
	DeltaRenderPlanned     = "render_planned"
	DeltaRenderWaiting     = "render_waiting"
	DeltaRenderCaptioning  = "render_captioning"
	DeltaRenderProgress    = "render_progress"
	DeltaRenderCompleted   = "render_completed"
	DeltaRenderFailed      = "render_failed"
	DeltaJobCancelled      = "job_cancelled"
	DeltaJobRetried        = "job_retried"
)

// JobDelta is one structured update pushed to per-job subscribers.
// Terminal deltas are additionally pushed to the global stream.
type JobDelta struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	StepNumber int       `json:"step_number,omitempty"`
	StepName   string    `json:"step_name,omitempty"`
	Progress   int       `json:"progress"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	VideoURL   string    `json:"video_url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Heartbeat keeps idle stream connections alive and detectable.
type Heartbeat struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsDelta is an opportunistic queue snapshot on the global stream.
type StatsDelta struct {
	Type  string     `json:"type"`
	Stats QueueStats `json:"stats"`
}

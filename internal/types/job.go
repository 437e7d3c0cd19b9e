package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current state of a generation job
type JobStatus string

// Job status constants
const (
	// JobStatusPending indicates the job is waiting to be claimed by a worker
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker is executing the generation steps
	JobStatusProcessing JobStatus = "processing"
	// JobStatusRendering indicates generation finished and the external
	// render service is assembling the final video
	JobStatusRendering JobStatus = "rendering"
	// JobStatusCompleted indicates the video was rendered successfully
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed at some stage
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled by the user
	JobStatusCancelled JobStatus = "cancelled"
)

// String returns the string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether the status allows no further transitions
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Active reports whether the job still has work in flight
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusRendering
}

// ParseJobStatus converts a string to a JobStatus
func ParseJobStatus(str string) (JobStatus, error) {
	switch JobStatus(str) {
	case JobStatusPending, JobStatusProcessing, JobStatusRendering,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return JobStatus(str), nil
	default:
		return "", fmt.Errorf("invalid job status: %s", str)
	}
}

// UnmarshalJSON implements json.Unmarshaler for JobStatus
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status, err := ParseJobStatus(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// GenerationParams describes the requested video. Immutable once the job
// is enqueued.
type GenerationParams struct {
	Country              string `json:"country"`
	Platform             string `json:"platform"`
	Genre                string `json:"genre"`
	ContentType          string `json:"content_type"`
	Template             string `json:"template,omitempty"`
	PauseAfterGeneration bool   `json:"pause_after_generation,omitempty"`
}

// Validate ensures that the generation parameters are usable
func (p *GenerationParams) Validate() error {
	if p.Country == "" {
		return fmt.Errorf("country cannot be empty")
	}
	if p.Platform == "" {
		return fmt.Errorf("platform cannot be empty")
	}
	if p.Genre == "" {
		return fmt.Errorf("genre cannot be empty")
	}
	if p.ContentType == "" {
		return fmt.Errorf("content type cannot be empty")
	}
	return nil
}

// Job is one user-requested generation task tracked end-to-end.
//
// Progress never decreases while the job is active; only an explicit
// retry resets it. RenderID is written at most once. The sequence and
// step markers reject duplicate or delayed worker callbacks.
type Job struct {
	ID                string           `json:"id"`
	Status            JobStatus        `json:"status"`
	Progress          int              `json:"progress"`
	CurrentStep       string           `json:"current_step,omitempty"`
	Params            GenerationParams `json:"parameters"`
	WorkerID          string           `json:"worker_id,omitempty"`
	RenderID          string           `json:"render_id,omitempty"`
	CurrentStepNumber int              `json:"current_step_number"`
	LastStepSequence  int64            `json:"last_step_sequence"`
	StepDetails       map[int]string   `json:"step_details,omitempty"`
	StepDuration      map[int]float64  `json:"step_duration,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	CancelledAt       *time.Time       `json:"cancelled_at,omitempty"`
	FailedAt          *time.Time       `json:"failed_at,omitempty"`
	Error             string           `json:"error,omitempty"`
	RetryCount        int              `json:"retry_count"`
	VideoURL          string           `json:"video_url,omitempty"`
}

// QueueStats is derived from the store on demand, never persisted.
type QueueStats struct {
	Pending       int64 `json:"pending"`
	Processing    int64 `json:"processing"`
	Rendering     int64 `json:"rendering"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Cancelled     int64 `json:"cancelled"`
	Total         int64 `json:"total"`
	ActiveWorkers int   `json:"active_workers"`
	Paused        bool  `json:"paused"`
}

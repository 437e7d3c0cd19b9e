// Package models defines the persisted audit entities.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobEvent is one durable audit record, appended for every accepted
// mutation of a job. Append-only; rows are never updated.
type JobEvent struct {
	gorm.Model
	JobID      string          `json:"job_id" gorm:"not null; index"`
	EventType  string          `json:"event_type" gorm:"not null; index"`
	Status     string          `json:"status" gorm:"not null"`
	Progress   int             `json:"progress" gorm:"not null"`
	StepNumber int             `json:"step_number"`
	Detail     json.RawMessage `json:"detail,omitempty" gorm:"type:jsonb"`
	OccurredAt time.Time       `json:"occurred_at" gorm:"not null; index"`
}

// Validate ensures that the event data is valid
func (e *JobEvent) Validate() error {
	if e.JobID == "" {
		return fmt.Errorf("event job id cannot be empty")
	}
	if e.EventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before appending a new event
func (e *JobEvent) BeforeCreate(_ *gorm.DB) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	return e.Validate()
}

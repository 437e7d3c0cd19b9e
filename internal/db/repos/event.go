// Package repos provides database access for the audit log.
package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/vidforge/vidforge/internal/db/models"
)

// DefaultEventLimit bounds event listings when no limit is given.
const DefaultEventLimit = 100

// EventRepository handles database operations for job events
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new instance of EventRepository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append writes a new audit event
func (r *EventRepository) Append(ctx context.Context, event *models.JobEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByJob retrieves the audit trail for one job, oldest first
func (r *EventRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	var events []models.JobEvent
	err := r.db.WithContext(ctx).
		Where(&models.JobEvent{JobID: jobID}).
		Order("occurred_at asc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// DeleteByJob removes a job's audit trail. Called when the job itself is
// deleted.
func (r *EventRepository) DeleteByJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).
		Where(&models.JobEvent{JobID: jobID}).
		Delete(&models.JobEvent{}).Error
}

package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bosun/internal/models"
)

// ProgressRepository handles the append-only progress event log.
type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Append inserts one progress event. Events are never updated or deleted
// while the job is live; insertion order is the observation order.
func (r *ProgressRepository) Append(ctx context.Context, ev *models.ProgressEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// ListByJob returns all events for a job in emission order.
func (r *ProgressRepository) ListByJob(ctx context.Context, jobID string) ([]models.ProgressEvent, error) {
	var events []models.ProgressEvent
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// HasFinal reports whether a final event was already emitted for the job.
func (r *ProgressRepository) HasFinal(ctx context.Context, jobID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProgressEvent{}).
		Where("job_id = ? AND is_final = ?", jobID, true).
		Count(&count).Error
	return count > 0, err
}

// PruneOlderThan deletes events older than the cutoff for jobs that have
// already reached a terminal state. Live jobs keep their full narrative.
func (r *ProgressRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := r.db.Model(&models.Job{}).
		Select("id").
		Where("status IN ?", []string{models.JobStatusCompleted, models.JobStatusFailed})

	res := r.db.WithContext(ctx).
		Where("created_at < ? AND job_id IN (?)", cutoff, terminal).
		Delete(&models.ProgressEvent{})
	return res.RowsAffected, res.Error
}

package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bosun/internal/models"
)

// JobRepository handles job rows and their status transitions.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new pending job.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// FindByID returns a job by id.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// FindAll returns jobs with pagination, optionally filtered by status.
func (r *JobRepository) FindAll(ctx context.Context, limit, page int, status string) ([]models.Job, int64, error) {
	var jobs []models.Job
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Job{})
	if status != "" {
		db = db.Where("status = ?", status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// MarkRunning flips a pending job to running and stamps started_at.
// Returns false when the job was not pending anymore; the conditional
// UPDATE is what keeps duplicate triggers from re-entering a job.
func (r *JobRepository) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusRunning,
			"started_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkCompleted writes the terminal completed state with the result document.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCompleted,
			"result":       result,
			"completed_at": at,
		}).Error
}

// MarkFailed writes the terminal failed state with a human-readable error.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"error":        errMsg,
			"completed_at": at,
		}).Error
}

// FindStaleRunning lists running jobs whose execution started before the cutoff.
func (r *JobRepository) FindStaleRunning(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", models.JobStatusRunning, cutoff).
		Find(&jobs).Error
	return jobs, err
}

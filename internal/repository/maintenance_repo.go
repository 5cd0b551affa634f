package repository

import (
	"context"

	"gorm.io/gorm"

	"bosun/internal/models"
)

// MaintenanceTaskRepository handles the maintenance task cache.
type MaintenanceTaskRepository struct {
	db *gorm.DB
}

func NewMaintenanceTaskRepository(db *gorm.DB) *MaintenanceTaskRepository {
	return &MaintenanceTaskRepository{db: db}
}

// FindByRegistryIDs returns all cached tasks for the given registry products.
func (r *MaintenanceTaskRepository) FindByRegistryIDs(ctx context.Context, ids []uint) ([]models.MaintenanceTaskEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var entries []models.MaintenanceTaskEntry
	err := r.db.WithContext(ctx).
		Where("product_registry_id IN ?", ids).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// CreateBatch inserts freshly generated tasks. Callers treat failures as
// best-effort: the cache is an optimization, not part of the job result.
func (r *MaintenanceTaskRepository) CreateBatch(ctx context.Context, entries []models.MaintenanceTaskEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

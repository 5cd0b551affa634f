package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"bosun/internal/models"
)

// Migrate ensures all engine tables exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		// Execution engine
		&models.Job{},
		&models.ProgressEvent{},
		// Shared content cache
		&models.ProductRegistryEntry{},
		&models.MaintenanceTaskEntry{},
	}
}

package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bosun/internal/models"
)

// ProductRegistryRepository handles the shared product registry cache.
// The registry is mutated by concurrent jobs; writes use insert-ignore
// semantics and callers refetch by natural key for authoritative ids.
type ProductRegistryRepository struct {
	db *gorm.DB
}

func NewProductRegistryRepository(db *gorm.DB) *ProductRegistryRepository {
	return &ProductRegistryRepository{db: db}
}

// InsertIgnore attempts to insert entries, silently skipping rows whose
// (manufacturer, model) key already exists. No rows are returned on
// conflict; callers must refetch to learn the authoritative ids.
func (r *ProductRegistryRepository) InsertIgnore(ctx context.Context, entries []models.ProductRegistryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "manufacturer"}, {Name: "model"}},
			DoNothing: true,
		}).
		Create(&entries).Error
}

// FindByManufacturers returns every entry belonging to the given manufacturers.
func (r *ProductRegistryRepository) FindByManufacturers(ctx context.Context, manufacturers []string) ([]models.ProductRegistryEntry, error) {
	if len(manufacturers) == 0 {
		return nil, nil
	}
	var entries []models.ProductRegistryEntry
	err := r.db.WithContext(ctx).
		Where("manufacturer IN ?", manufacturers).
		Find(&entries).Error
	return entries, err
}

// FillMissing enriches a registry row with data from src, writing only
// columns that are currently empty. Populated fields are never overwritten,
// so concurrent enrichment from different jobs stays harmless.
func (r *ProductRegistryRepository) FillMissing(ctx context.Context, id uint, src models.ProductRegistryEntry) error {
	var row models.ProductRegistryEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{}
	fill := func(column, current, incoming string) {
		if current == "" && incoming != "" {
			updates[column] = incoming
		}
	}
	fill("category", row.Category, src.Category)
	fill("subcategory", row.Subcategory, src.Subcategory)
	fill("description", row.Description, src.Description)
	fill("specs", row.Specs, src.Specs)
	fill("manufacturer_url", row.ManufacturerURL, src.ManufacturerURL)
	fill("documentation_links", row.DocumentationLinks, src.DocumentationLinks)
	fill("spare_parts_links", row.SparePartsLinks, src.SparePartsLinks)

	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ProductRegistryEntry{}).
		Where("id = ?", id).
		Updates(updates).Error
}

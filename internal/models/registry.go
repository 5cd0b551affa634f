package models

import "time"

// ProductRegistryEntry caches a real-world equipment identity, keyed by the
// natural (manufacturer, model) pair. Rows are created lazily by whichever
// job first encounters the identity; later jobs only fill gaps.
type ProductRegistryEntry struct {
	ID                 uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Manufacturer       string    `gorm:"column:manufacturer;size:190;uniqueIndex:idx_product_registry_identity,priority:1" json:"manufacturer"`
	Model              string    `gorm:"column:model;size:190;uniqueIndex:idx_product_registry_identity,priority:2" json:"model"`
	Category           string    `gorm:"column:category;size:50" json:"category"`
	Subcategory        string    `gorm:"column:subcategory;size:100" json:"subcategory"`
	Description        string    `gorm:"column:description;type:text" json:"description"`
	Specs              string    `gorm:"column:specs;type:longtext" json:"specs"`
	ManufacturerURL    string    `gorm:"column:manufacturer_url;size:500" json:"manufacturer_url"`
	DocumentationLinks string    `gorm:"column:documentation_links;type:text" json:"documentation_links"`
	SparePartsLinks    string    `gorm:"column:spare_parts_links;type:text" json:"spare_parts_links"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ProductRegistryEntry) TableName() string {
	return "product_registry"
}

// MaintenanceTaskEntry caches one generated upkeep task for a registry
// product. Created once, read-only on cache-hit paths; a product may own
// any number of task rows.
type MaintenanceTaskEntry struct {
	ID                  uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProductRegistryID   uint      `gorm:"column:product_registry_id;index:idx_maintenance_tasks_product" json:"product_registry_id"`
	Title               string    `gorm:"column:title;size:255" json:"title"`
	Description         string    `gorm:"column:description;type:text" json:"description"`
	Category            string    `gorm:"column:category;size:50" json:"category"`
	Priority            string    `gorm:"column:priority;size:20" json:"priority"`
	RecurrenceType      string    `gorm:"column:recurrence_type;size:10" json:"recurrence_type"`
	IntervalDays        *int      `gorm:"column:interval_days" json:"interval_days,omitempty"`
	IntervalEngineHours *int      `gorm:"column:interval_engine_hours" json:"interval_engine_hours,omitempty"`
	EstimatedHours      float64   `gorm:"column:estimated_hours" json:"estimated_hours"`
	Source              string    `gorm:"column:source;size:20;default:ai" json:"source"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (MaintenanceTaskEntry) TableName() string {
	return "maintenance_tasks"
}

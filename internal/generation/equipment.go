package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bosun/internal/ai"
	"bosun/internal/jobs"
	"bosun/internal/models"
)

// Job type tags, bound in the handler registry.
const (
	JobTypeEquipment = "equipment_maintenance"
	JobTypeRoute     = "route_plan"
)

// RegistryStore is the slice of the product registry the handler needs.
type RegistryStore interface {
	InsertIgnore(ctx context.Context, entries []models.ProductRegistryEntry) error
	FindByManufacturers(ctx context.Context, manufacturers []string) ([]models.ProductRegistryEntry, error)
	FillMissing(ctx context.Context, id uint, src models.ProductRegistryEntry) error
}

// MaintenanceStore is the slice of the task cache the handler needs.
type MaintenanceStore interface {
	FindByRegistryIDs(ctx context.Context, ids []uint) ([]models.MaintenanceTaskEntry, error)
	CreateBatch(ctx context.Context, entries []models.MaintenanceTaskEntry) error
}

// EquipmentHandler is the two-phase equipment and maintenance generator:
// phase 1 researches the boat's equipment with web-search grounding, phase
// 2 generates maintenance tasks for the items the shared cache cannot
// serve. Cache failures degrade the job, they never fail it.
type EquipmentHandler struct {
	ai       ai.Client
	registry RegistryStore
	tasks    MaintenanceStore
	logger   *zap.Logger
}

func NewEquipmentHandler(client ai.Client, registry RegistryStore, tasks MaintenanceStore, logger *zap.Logger) *EquipmentHandler {
	return &EquipmentHandler{ai: client, registry: registry, tasks: tasks, logger: logger}
}

func (h *EquipmentHandler) Run(ctx context.Context, job *models.Job, progress jobs.ProgressContext) (map[string]interface{}, error) {
	var payload EquipmentPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return nil, fmt.Errorf("invalid equipment payload: %w", err)
	}
	if strings.TrimSpace(payload.Make) == "" && strings.TrimSpace(payload.Model) == "" {
		return nil, fmt.Errorf("equipment payload needs a make or model")
	}

	// Phase 1: equipment discovery.
	progress.Emit(ctx, "Building research prompt", 5)
	prompt := buildResearchPrompt(payload, time.Now().Year())

	progress.Emit(ctx, "Researching equipment", 10)
	rawOut, err := h.ai.Generate(ctx, ai.Request{
		System:      researchSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   8000,
		WebSearch:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("equipment research call failed: %w", err)
	}

	items, err := parseEquipment(rawOut, payload.BuildYear > 0)
	if err != nil {
		progress.EmitDetail(ctx, "Unparseable producer output", 35, snippet(rawOut, 500))
		return nil, err
	}
	progress.EmitDetail(ctx, "Parsed equipment list", 40, fmt.Sprintf("%d items", len(items)))

	// Cache coordination: upsert-ignore, then refetch for authoritative ids.
	progress.Emit(ctx, "Syncing product registry", 55)
	h.syncRegistry(ctx, items)

	// Phase 2: maintenance tasks, cache-aware.
	progress.Emit(ctx, "Checking maintenance task cache", 65)
	cachedTasks, needsGeneration := h.splitByCache(ctx, items)

	var generated []MaintenanceTask
	if len(needsGeneration) > 0 {
		progress.Emit(ctx, "Generating maintenance tasks", 75)
		taskOut, err := h.ai.Generate(ctx, ai.Request{
			System:      taskSystemPrompt,
			Prompt:      buildTaskPrompt(needsGeneration),
			Temperature: 0.2,
			MaxTokens:   4000,
		})
		if err != nil {
			return nil, fmt.Errorf("task generation call failed: %w", err)
		}

		validIndexes := make(map[int]bool, len(needsGeneration))
		for _, it := range needsGeneration {
			validIndexes[it.Index] = true
		}
		generated, err = parseTasks(taskOut, validIndexes)
		if err != nil {
			progress.EmitDetail(ctx, "Unparseable producer output", 85, snippet(taskOut, 500))
			return nil, err
		}

		progress.Emit(ctx, "Caching generated tasks", 90)
		h.cacheGenerated(ctx, items, generated)
	}

	merged := make([]MaintenanceTask, 0, len(cachedTasks)+len(generated))
	merged = append(merged, cachedTasks...)
	merged = append(merged, generated...)

	progress.EmitFinal(ctx, "Done", 100)
	return map[string]interface{}{
		"equipment":      items,
		"tasks":          merged,
		"cachedTasks":    len(cachedTasks),
		"generatedTasks": len(generated),
	}, nil
}

// identityKey normalizes the natural cache key so concurrent jobs agree on
// identity regardless of producer casing.
func identityKey(manufacturer, model string) string {
	return strings.ToLower(strings.TrimSpace(manufacturer)) + "\x00" + strings.ToLower(strings.TrimSpace(model))
}

// syncRegistry resolves a registry id for every item with a full
// (manufacturer, model) identity. The insert result is never trusted:
// conflicting writers return no rows, so the refetch by manufacturer set
// is the only authoritative source of ids. Registry failures are logged
// and leave items unresolved; the job continues without the cache.
func (h *EquipmentHandler) syncRegistry(ctx context.Context, items []EquipmentItem) {
	entries := make([]models.ProductRegistryEntry, 0, len(items))
	discovered := make(map[string]models.ProductRegistryEntry)
	seen := make(map[string]bool)

	for _, it := range items {
		if it.Manufacturer == "" || it.Model == "" {
			continue
		}
		entry := registryEntryFromItem(it)
		key := identityKey(it.Manufacturer, it.Model)
		discovered[key] = entry
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return
	}

	if err := h.registry.InsertIgnore(ctx, entries); err != nil {
		h.logger.Warn("Product registry insert failed", zap.Error(err))
	}

	manufacturers := make([]string, 0, len(entries))
	mseen := make(map[string]bool)
	for _, e := range entries {
		if !mseen[e.Manufacturer] {
			mseen[e.Manufacturer] = true
			manufacturers = append(manufacturers, e.Manufacturer)
		}
	}

	rows, err := h.registry.FindByManufacturers(ctx, manufacturers)
	if err != nil {
		h.logger.Warn("Product registry refetch failed", zap.Error(err))
		return
	}

	byKey := make(map[string]models.ProductRegistryEntry, len(rows))
	for _, row := range rows {
		byKey[identityKey(row.Manufacturer, row.Model)] = row
	}

	enriched := make(map[uint]bool)
	for i := range items {
		if items[i].Manufacturer == "" || items[i].Model == "" {
			continue
		}
		key := identityKey(items[i].Manufacturer, items[i].Model)
		row, ok := byKey[key]
		if !ok {
			continue
		}
		items[i].RegistryID = row.ID

		// A pre-existing bare row gets gaps filled with what this job
		// discovered; populated fields stay untouched.
		if !enriched[row.ID] {
			enriched[row.ID] = true
			if err := h.registry.FillMissing(ctx, row.ID, discovered[key]); err != nil {
				h.logger.Warn("Product registry enrichment failed", zap.Uint("registry_id", row.ID), zap.Error(err))
			}
		}
	}
}

func registryEntryFromItem(it EquipmentItem) models.ProductRegistryEntry {
	entry := models.ProductRegistryEntry{
		Manufacturer:    it.Manufacturer,
		Model:           it.Model,
		Category:        it.Category,
		Subcategory:     "",
		Description:     it.Description,
		ManufacturerURL: it.ManufacturerURL,
	}
	if len(it.Specs) > 0 {
		if raw, err := json.Marshal(it.Specs); err == nil {
			entry.Specs = string(raw)
		}
	}
	if len(it.DocumentationLinks) > 0 {
		if raw, err := json.Marshal(it.DocumentationLinks); err == nil {
			entry.DocumentationLinks = string(raw)
		}
	}
	if len(it.SparePartsLinks) > 0 {
		if raw, err := json.Marshal(it.SparePartsLinks); err == nil {
			entry.SparePartsLinks = string(raw)
		}
	}
	return entry
}

// splitByCache partitions items into tasks served from cache and items
// needing generation. Items with no registry id are never cacheable and
// always regenerate; items with at least one cached task are fully served.
func (h *EquipmentHandler) splitByCache(ctx context.Context, items []EquipmentItem) ([]MaintenanceTask, []EquipmentItem) {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		if it.RegistryID != 0 {
			ids = append(ids, it.RegistryID)
		}
	}

	cachedByID := make(map[uint][]models.MaintenanceTaskEntry)
	if len(ids) > 0 {
		entries, err := h.tasks.FindByRegistryIDs(ctx, ids)
		if err != nil {
			h.logger.Warn("Maintenance cache lookup failed", zap.Error(err))
		}
		for _, e := range entries {
			cachedByID[e.ProductRegistryID] = append(cachedByID[e.ProductRegistryID], e)
		}
	}

	var cached []MaintenanceTask
	var needs []EquipmentItem
	for _, it := range items {
		hits := cachedByID[it.RegistryID]
		if it.RegistryID == 0 || len(hits) == 0 {
			needs = append(needs, it)
			continue
		}
		// Remap cached tasks from registry id to this job's item index.
		for _, e := range hits {
			cached = append(cached, taskFromCacheEntry(e, it.Index))
		}
	}
	return cached, needs
}

func taskFromCacheEntry(e models.MaintenanceTaskEntry, equipmentIndex int) MaintenanceTask {
	task := MaintenanceTask{
		EquipmentIndex: equipmentIndex,
		Title:          e.Title,
		Description:    e.Description,
		Category:       e.Category,
		Priority:       e.Priority,
		EstimatedHours: e.EstimatedHours,
		Source:         "cache",
	}
	if e.RecurrenceType == RecurrenceUsage {
		task.Recurrence = Recurrence{Type: RecurrenceUsage, IntervalEngineHours: e.IntervalEngineHours}
	} else {
		task.Recurrence = Recurrence{Type: RecurrenceTime, IntervalDays: e.IntervalDays}
	}
	return task
}

// cacheGenerated writes freshly generated tasks for items with a registry
// id. Best-effort by design: the job's deliverable is the task list, not
// the cache side effect.
func (h *EquipmentHandler) cacheGenerated(ctx context.Context, items []EquipmentItem, generated []MaintenanceTask) {
	registryByIndex := make(map[int]uint, len(items))
	for _, it := range items {
		if it.RegistryID != 0 {
			registryByIndex[it.Index] = it.RegistryID
		}
	}

	entries := make([]models.MaintenanceTaskEntry, 0, len(generated))
	for _, t := range generated {
		registryID, ok := registryByIndex[t.EquipmentIndex]
		if !ok {
			continue
		}
		entry := models.MaintenanceTaskEntry{
			ProductRegistryID: registryID,
			Title:             t.Title,
			Description:       t.Description,
			Category:          t.Category,
			Priority:          t.Priority,
			RecurrenceType:    t.Recurrence.Type,
			IntervalDays:      t.Recurrence.IntervalDays,
			IntervalEngineHours: t.Recurrence.IntervalEngineHours,
			EstimatedHours:    t.EstimatedHours,
			Source:            "ai",
		}
		entries = append(entries, entry)
	}

	if err := h.tasks.CreateBatch(ctx, entries); err != nil {
		h.logger.Warn("Maintenance cache write failed", zap.Int("tasks", len(entries)), zap.Error(err))
	}
}

var _ jobs.Handler = (*EquipmentHandler)(nil)

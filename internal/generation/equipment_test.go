package generation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bosun/internal/ai"
	"bosun/internal/models"
)

// fakeAI returns canned responses in call order.
type fakeAI struct {
	responses []string
	errs      []error
	requests  []ai.Request
}

func (f *fakeAI) Generate(_ context.Context, req ai.Request) (string, error) {
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx >= len(f.responses) {
		return "", fmt.Errorf("unexpected call %d", idx)
	}
	return f.responses[idx], nil
}

// fakeRegistry simulates the shared registry table with upsert-ignore
// semantics keyed by the case-insensitive (manufacturer, model) pair.
type fakeRegistry struct {
	rows       map[string]models.ProductRegistryEntry
	nextID     uint
	insertErr  error
	filled     []uint
	refetchErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rows: make(map[string]models.ProductRegistryEntry), nextID: 1}
}

func (f *fakeRegistry) seed(entry models.ProductRegistryEntry) uint {
	entry.ID = f.nextID
	f.nextID++
	f.rows[identityKey(entry.Manufacturer, entry.Model)] = entry
	return entry.ID
}

func (f *fakeRegistry) InsertIgnore(_ context.Context, entries []models.ProductRegistryEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, e := range entries {
		key := identityKey(e.Manufacturer, e.Model)
		if _, exists := f.rows[key]; exists {
			continue
		}
		e.ID = f.nextID
		f.nextID++
		f.rows[key] = e
	}
	return nil
}

func (f *fakeRegistry) FindByManufacturers(_ context.Context, manufacturers []string) ([]models.ProductRegistryEntry, error) {
	if f.refetchErr != nil {
		return nil, f.refetchErr
	}
	wanted := make(map[string]bool)
	for _, m := range manufacturers {
		wanted[identityKey(m, "")] = true
	}
	var out []models.ProductRegistryEntry
	for _, row := range f.rows {
		if wanted[identityKey(row.Manufacturer, "")] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeRegistry) FillMissing(_ context.Context, id uint, _ models.ProductRegistryEntry) error {
	f.filled = append(f.filled, id)
	return nil
}

type fakeMaintenance struct {
	entries   map[uint][]models.MaintenanceTaskEntry
	created   []models.MaintenanceTaskEntry
	createErr error
}

func newFakeMaintenance() *fakeMaintenance {
	return &fakeMaintenance{entries: make(map[uint][]models.MaintenanceTaskEntry)}
}

func (f *fakeMaintenance) FindByRegistryIDs(_ context.Context, ids []uint) ([]models.MaintenanceTaskEntry, error) {
	var out []models.MaintenanceTaskEntry
	for _, id := range ids {
		out = append(out, f.entries[id]...)
	}
	return out, nil
}

func (f *fakeMaintenance) CreateBatch(_ context.Context, entries []models.MaintenanceTaskEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, entries...)
	return nil
}

// recordingProgress captures emissions for assertions.
type recordingProgress struct {
	steps  []string
	finals int
}

func (r *recordingProgress) Emit(_ context.Context, step string, _ int) {
	r.steps = append(r.steps, step)
}

func (r *recordingProgress) EmitDetail(_ context.Context, step string, _ int, _ string) {
	r.steps = append(r.steps, step)
}

func (r *recordingProgress) EmitFinal(_ context.Context, step string, _ int) {
	r.steps = append(r.steps, step)
	r.finals++
}

const equipmentResearchOut = `{"equipment":[
	{"index":0,"name":"Volvo Penta D2-40","category":"engine","manufacturer":"Volvo Penta","model":"D2-40"},
	{"index":1,"name":"Raymarine Axiom 9","category":"electronics","manufacturer":"Raymarine","model":"Axiom 9"},
	{"index":2,"name":"Unbranded bilge pump","category":"plumbing"}
]}`

const taskGenerationOut = `{"tasks":[
	{"equipmentIndex":0,"title":"Change engine oil","category":"engine","priority":"high","recurrence":{"type":"usage","intervalEngineHours":100}},
	{"equipmentIndex":2,"title":"Test bilge pump float switch","category":"plumbing","priority":"medium","recurrence":{"type":"time","intervalDays":90}}
]}`

func equipmentJob(payload string) *models.Job {
	return &models.Job{ID: "job-1", Type: JobTypeEquipment, Payload: payload, Status: models.JobStatusRunning}
}

func TestEquipmentRunFullMiss(t *testing.T) {
	client := &fakeAI{responses: []string{equipmentResearchOut, taskGenerationOut}}
	registry := newFakeRegistry()
	maint := newFakeMaintenance()
	h := NewEquipmentHandler(client, registry, maint, zap.NewNop())
	progress := &recordingProgress{}

	result, err := h.Run(context.Background(), equipmentJob(`{"make":"Hallberg-Rassy","model":"352","buildYear":1984}`), progress)
	require.NoError(t, err)

	items := result["equipment"].([]EquipmentItem)
	require.Len(t, items, 3)
	// Items with a full identity resolved a registry id; the unbranded one did not.
	assert.NotZero(t, items[0].RegistryID)
	assert.NotZero(t, items[1].RegistryID)
	assert.Zero(t, items[2].RegistryID)

	tasks := result["tasks"].([]MaintenanceTask)
	assert.Len(t, tasks, 2)
	assert.Equal(t, 0, result["cachedTasks"])
	assert.Equal(t, 2, result["generatedTasks"])

	// Only the task tied to a registry id was cached.
	require.Len(t, maint.created, 1)
	assert.Equal(t, items[0].RegistryID, maint.created[0].ProductRegistryID)
	assert.Equal(t, "Change engine oil", maint.created[0].Title)

	// Research call used web search, task call did not.
	require.Len(t, client.requests, 2)
	assert.True(t, client.requests[0].WebSearch)
	assert.False(t, client.requests[1].WebSearch)

	assert.Equal(t, 1, progress.finals)
	assert.Equal(t, "Done", progress.steps[len(progress.steps)-1])
}

func TestEquipmentRunCacheHit(t *testing.T) {
	registry := newFakeRegistry()
	days := 365
	id := registry.seed(models.ProductRegistryEntry{Manufacturer: "Volvo Penta", Model: "D2-40"})
	maint := newFakeMaintenance()
	maint.entries[id] = []models.MaintenanceTaskEntry{{
		ProductRegistryID: id,
		Title:             "Change engine oil",
		Category:          CategoryEngine,
		Priority:          PriorityHigh,
		RecurrenceType:    RecurrenceTime,
		IntervalDays:      &days,
	}}

	research := `{"equipment":[{"index":4,"name":"Volvo Penta D2-40","category":"engine","manufacturer":"VOLVO PENTA","model":"d2-40"}]}`
	client := &fakeAI{responses: []string{research}}
	h := NewEquipmentHandler(client, registry, maint, zap.NewNop())

	result, err := h.Run(context.Background(), equipmentJob(`{"make":"Hallberg-Rassy","model":"352"}`), &recordingProgress{})
	require.NoError(t, err)

	// Identity matching is case-insensitive, so the cache fully serves the
	// item and phase 2 never runs.
	require.Len(t, client.requests, 1)
	assert.Equal(t, 1, result["cachedTasks"])
	assert.Equal(t, 0, result["generatedTasks"])

	tasks := result["tasks"].([]MaintenanceTask)
	require.Len(t, tasks, 1)
	assert.Equal(t, "cache", tasks[0].Source)
	// The cached task is remapped to this job's item index.
	assert.Equal(t, 4, tasks[0].EquipmentIndex)
}

func TestEquipmentRunRegistryFailureDegrades(t *testing.T) {
	registry := newFakeRegistry()
	registry.insertErr = fmt.Errorf("db down")
	registry.refetchErr = fmt.Errorf("db down")

	client := &fakeAI{responses: []string{equipmentResearchOut, taskGenerationOut}}
	h := NewEquipmentHandler(client, registry, newFakeMaintenance(), zap.NewNop())

	result, err := h.Run(context.Background(), equipmentJob(`{"make":"Hallberg-Rassy","model":"352"}`), &recordingProgress{})
	require.NoError(t, err)

	// Registry failures never fail the job; every item just regenerates.
	items := result["equipment"].([]EquipmentItem)
	for _, it := range items {
		assert.Zero(t, it.RegistryID)
	}
	assert.Equal(t, 2, result["generatedTasks"])
}

func TestEquipmentRunCacheWriteFailureDegrades(t *testing.T) {
	maint := newFakeMaintenance()
	maint.createErr = fmt.Errorf("insert failed")
	client := &fakeAI{responses: []string{equipmentResearchOut, taskGenerationOut}}
	h := NewEquipmentHandler(client, newFakeRegistry(), maint, zap.NewNop())

	result, err := h.Run(context.Background(), equipmentJob(`{"make":"Hallberg-Rassy","model":"352"}`), &recordingProgress{})
	require.NoError(t, err)
	assert.Equal(t, 2, result["generatedTasks"])
}

func TestEquipmentRunInvalidPayload(t *testing.T) {
	h := NewEquipmentHandler(&fakeAI{}, newFakeRegistry(), newFakeMaintenance(), zap.NewNop())

	_, err := h.Run(context.Background(), equipmentJob(`not json`), &recordingProgress{})
	assert.Error(t, err)

	_, err = h.Run(context.Background(), equipmentJob(`{"categories":["engine"]}`), &recordingProgress{})
	assert.Error(t, err)
}

func TestEquipmentRunUnparseableResearch(t *testing.T) {
	client := &fakeAI{responses: []string{"I am unable to research that boat."}}
	h := NewEquipmentHandler(client, newFakeRegistry(), newFakeMaintenance(), zap.NewNop())
	progress := &recordingProgress{}

	_, err := h.Run(context.Background(), equipmentJob(`{"make":"Hallberg-Rassy","model":"352"}`), progress)
	require.Error(t, err)
	assert.Contains(t, progress.steps, "Unparseable producer output")
	assert.Zero(t, progress.finals)
}

func TestEquipmentRunResearchCallFails(t *testing.T) {
	client := &fakeAI{errs: []error{fmt.Errorf("rate limited")}}
	h := NewEquipmentHandler(client, newFakeRegistry(), newFakeMaintenance(), zap.NewNop())

	_, err := h.Run(context.Background(), equipmentJob(`{"make":"Hallberg-Rassy","model":"352"}`), &recordingProgress{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research call failed")
}

func TestIdentityKey(t *testing.T) {
	assert.Equal(t, identityKey("Volvo Penta", "D2-40"), identityKey("  volvo penta ", "d2-40"))
	assert.NotEqual(t, identityKey("Volvo", "Penta D2-40"), identityKey("Volvo Penta", "D2-40"))
}

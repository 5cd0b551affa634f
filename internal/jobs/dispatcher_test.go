package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bosun/internal/models"
)

// fakeJobStore is an in-memory JobStore that signals terminal writes so
// tests can wait for the detached execution.
type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	terminal chan string
}

func newFakeJobStore(jobs ...*models.Job) *fakeJobStore {
	s := &fakeJobStore{
		jobs:     make(map[string]*models.Job),
		terminal: make(chan string, 8),
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) FindByID(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	cp := *j
	return &cp, nil
}

func (s *fakeJobStore) MarkRunning(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	j.Status = models.JobStatusRunning
	j.StartedAt = &at
	return true, nil
}

func (s *fakeJobStore) MarkCompleted(_ context.Context, id string, result string, at time.Time) error {
	s.mu.Lock()
	if j, ok := s.jobs[id]; ok {
		j.Status = models.JobStatusCompleted
		j.Result = result
		j.CompletedAt = &at
	}
	s.mu.Unlock()
	s.terminal <- id
	return nil
}

func (s *fakeJobStore) MarkFailed(_ context.Context, id string, errMsg string, at time.Time) error {
	s.mu.Lock()
	if j, ok := s.jobs[id]; ok {
		j.Status = models.JobStatusFailed
		j.Error = errMsg
		j.CompletedAt = &at
	}
	s.mu.Unlock()
	s.terminal <- id
	return nil
}

func (s *fakeJobStore) get(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeJobStore) awaitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-s.terminal:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal state")
	}
}

type fakeProgressStore struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (s *fakeProgressStore) Append(_ context.Context, ev *models.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *fakeProgressStore) HasFinal(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.JobID == jobID && ev.IsFinal {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeProgressStore) all() []models.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProgressEvent, len(s.events))
	copy(out, s.events)
	return out
}

// handlerFunc adapts a closure to Handler.
type handlerFunc func(ctx context.Context, job *models.Job, progress ProgressContext) (map[string]interface{}, error)

func (f handlerFunc) Run(ctx context.Context, job *models.Job, progress ProgressContext) (map[string]interface{}, error) {
	return f(ctx, job, progress)
}

func testRegistry(jobType string, h Handler) *Registry {
	r := NewRegistry()
	r.Register(jobType, h)
	return r
}

func pendingJob(id, jobType string) *models.Job {
	return &models.Job{ID: id, Type: jobType, Payload: "{}", Status: models.JobStatusPending}
}

func TestDispatchCompletesJob(t *testing.T) {
	store := newFakeJobStore(pendingJob("j1", "echo"))
	progress := &fakeProgressStore{}

	registry := testRegistry("echo", handlerFunc(func(ctx context.Context, job *models.Job, p ProgressContext) (map[string]interface{}, error) {
		p.Emit(ctx, "Working", 50)
		p.EmitFinal(ctx, "Done", 100)
		return map[string]interface{}{"ok": true}, nil
	}))

	d := NewDispatcher(store, progress, noopPublisher{}, registry, 0, zap.NewNop())
	d.Dispatch("j1")
	store.awaitTerminal(t)

	job := store.get("j1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(job.Result), &result))
	assert.Equal(t, true, result["ok"])

	events := progress.all()
	require.Len(t, events, 2)
	assert.Equal(t, "Working", events[0].StepLabel)
	require.NotNil(t, events[0].Percent)
	assert.Equal(t, 50, *events[0].Percent)
	assert.False(t, events[0].IsFinal)
	assert.True(t, events[1].IsFinal)
}

func TestDispatchUnknownJobIsNoOp(t *testing.T) {
	store := newFakeJobStore()
	d := NewDispatcher(store, &fakeProgressStore{}, noopPublisher{}, NewRegistry(), 0, zap.NewNop())

	d.Dispatch("missing")

	select {
	case id := <-store.terminal:
		t.Fatalf("unexpected terminal write for %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchNonPendingIsNoOp(t *testing.T) {
	job := pendingJob("j1", "echo")
	job.Status = models.JobStatusCompleted
	store := newFakeJobStore(job)

	var ran bool
	registry := testRegistry("echo", handlerFunc(func(context.Context, *models.Job, ProgressContext) (map[string]interface{}, error) {
		ran = true
		return nil, nil
	}))

	d := NewDispatcher(store, &fakeProgressStore{}, noopPublisher{}, registry, 0, zap.NewNop())
	d.Dispatch("j1")

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran)
	assert.Equal(t, models.JobStatusCompleted, store.get("j1").Status)
}

func TestDispatchUnknownTypeFails(t *testing.T) {
	store := newFakeJobStore(pendingJob("j1", "nope"))
	progress := &fakeProgressStore{}

	d := NewDispatcher(store, progress, noopPublisher{}, NewRegistry(), 0, zap.NewNop())
	d.Dispatch("j1")
	store.awaitTerminal(t)

	job := store.get("j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "Unknown job type")

	// The engine supplied the final event the handler never got to emit.
	events := progress.all()
	require.Len(t, events, 1)
	assert.True(t, events[0].IsFinal)
	assert.Equal(t, "Failed", events[0].StepLabel)
	assert.Nil(t, events[0].Percent)
}

func TestDispatchHandlerErrorFails(t *testing.T) {
	store := newFakeJobStore(pendingJob("j1", "boom"))
	progress := &fakeProgressStore{}

	registry := testRegistry("boom", handlerFunc(func(ctx context.Context, job *models.Job, p ProgressContext) (map[string]interface{}, error) {
		p.Emit(ctx, "Starting", 10)
		return nil, fmt.Errorf("backend unavailable")
	}))

	d := NewDispatcher(store, progress, noopPublisher{}, registry, 0, zap.NewNop())
	d.Dispatch("j1")
	store.awaitTerminal(t)

	job := store.get("j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "backend unavailable", job.Error)

	events := progress.all()
	require.Len(t, events, 2)
	assert.True(t, events[1].IsFinal)
	assert.Equal(t, "backend unavailable", events[1].AIMessage)
}

func TestDispatchPanicRecovered(t *testing.T) {
	store := newFakeJobStore(pendingJob("j1", "panic"))
	progress := &fakeProgressStore{}

	registry := testRegistry("panic", handlerFunc(func(context.Context, *models.Job, ProgressContext) (map[string]interface{}, error) {
		panic("nil map write")
	}))

	d := NewDispatcher(store, progress, noopPublisher{}, registry, 0, zap.NewNop())
	d.Dispatch("j1")
	store.awaitTerminal(t)

	job := store.get("j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "panic: nil map write")
}

func TestDispatchExactlyOneFinalEvent(t *testing.T) {
	store := newFakeJobStore(pendingJob("j1", "lateFail"))
	progress := &fakeProgressStore{}

	// Handler emits its own final event and then errors: the engine must
	// not add a second one.
	registry := testRegistry("lateFail", handlerFunc(func(ctx context.Context, job *models.Job, p ProgressContext) (map[string]interface{}, error) {
		p.EmitFinal(ctx, "Done", 100)
		return nil, fmt.Errorf("post-final failure")
	}))

	d := NewDispatcher(store, progress, noopPublisher{}, registry, 0, zap.NewNop())
	d.Dispatch("j1")
	store.awaitTerminal(t)

	finals := 0
	for _, ev := range progress.all() {
		if ev.IsFinal {
			finals++
		}
	}
	assert.Equal(t, 1, finals)
}

func TestDispatchTimeoutCancelsContext(t *testing.T) {
	store := newFakeJobStore(pendingJob("j1", "slow"))
	progress := &fakeProgressStore{}

	registry := testRegistry("slow", handlerFunc(func(ctx context.Context, job *models.Job, p ProgressContext) (map[string]interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]interface{}{}, nil
		}
	}))

	d := NewDispatcher(store, progress, noopPublisher{}, registry, 20*time.Millisecond, zap.NewNop())
	d.Dispatch("j1")
	store.awaitTerminal(t)

	job := store.get("j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "context deadline exceeded")
}

func TestDispatchConcurrentTriggersRunOnce(t *testing.T) {
	store := newFakeJobStore(pendingJob("j1", "count"))
	progress := &fakeProgressStore{}

	var mu sync.Mutex
	runs := 0
	registry := testRegistry("count", handlerFunc(func(context.Context, *models.Job, ProgressContext) (map[string]interface{}, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		return map[string]interface{}{}, nil
	}))

	d := NewDispatcher(store, progress, noopPublisher{}, registry, 0, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch("j1")
		}()
	}
	wg.Wait()
	store.awaitTerminal(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestProgressEmitNegativePercentStoredAsNull(t *testing.T) {
	progress := &fakeProgressStore{}
	p := newJobProgress("j1", progress, noopPublisher{}, zap.NewNop())

	p.Emit(context.Background(), "No percent", -1)

	events := progress.all()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Percent)
}

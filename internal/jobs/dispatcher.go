package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bosun/internal/models"
)

// Dispatcher turns a trigger into a detached execution. It owns the
// pending -> running transition and the terminal write-back; it never runs
// business logic itself.
type Dispatcher struct {
	jobs     JobStore
	progress ProgressStore
	pub      Publisher
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher builds a dispatcher. timeout bounds each detached
// execution; zero disables the deadline.
func NewDispatcher(jobs JobStore, progress ProgressStore, pub Publisher, registry *Registry, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		progress: progress,
		pub:      pub,
		registry: registry,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch loads the job and, when it is still pending, hands execution to
// a goroutine that outlives the caller. Unknown ids and non-pending jobs
// are logged no-ops: duplicate trigger deliveries must not restart work.
func (d *Dispatcher) Dispatch(jobID string) {
	ctx := context.Background()

	job, err := d.jobs.FindByID(ctx, jobID)
	if err != nil {
		d.logger.Info("Dispatch for unknown job", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status != models.JobStatusPending {
		d.logger.Warn("Dispatch skipped, job is not pending",
			zap.String("job_id", jobID),
			zap.String("status", job.Status))
		return
	}

	claimed, err := d.jobs.MarkRunning(ctx, job.ID, time.Now())
	if err != nil {
		d.logger.Error("Failed to mark job running", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if !claimed {
		// Lost the race against a concurrent trigger delivery.
		d.logger.Warn("Dispatch skipped, job already claimed", zap.String("job_id", jobID))
		return
	}

	go d.execute(job)
}

// execute runs the handler to completion, independent of the request that
// triggered it, and writes the terminal state.
func (d *Dispatcher) execute(job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			d.Fail(job.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	handler, ok := d.registry.Lookup(job.Type)
	if !ok {
		d.Fail(job.ID, "Unknown job type: "+job.Type)
		return
	}

	progress := newJobProgress(job.ID, d.progress, d.pub, d.logger)

	result, err := handler.Run(ctx, job, progress)
	if err != nil {
		d.Fail(job.ID, err.Error())
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		d.Fail(job.ID, fmt.Sprintf("unencodable result: %v", err))
		return
	}

	if err := d.jobs.MarkCompleted(context.Background(), job.ID, string(raw), time.Now()); err != nil {
		d.logger.Error("Failed to mark job completed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Fail writes the failed terminal state and makes sure a final progress
// event exists, covering handlers that errored before emitting their own.
// Terminal writes use a fresh context so they land even after the job's
// deadline expired.
func (d *Dispatcher) Fail(jobID, reason string) {
	ctx := context.Background()

	if err := d.jobs.MarkFailed(ctx, jobID, reason, time.Now()); err != nil {
		d.logger.Error("Failed to mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}

	hasFinal, err := d.progress.HasFinal(ctx, jobID)
	if err != nil {
		d.logger.Warn("Failed to check for final progress event", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if !hasFinal {
		p := newJobProgress(jobID, d.progress, d.pub, d.logger)
		p.emit(ctx, "Failed", -1, reason, true)
	}

	d.logger.Error("Job failed", zap.String("job_id", jobID), zap.String("reason", reason))
}

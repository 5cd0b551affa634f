package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bosun/internal/config"
	"bosun/internal/jobs"
	"bosun/internal/repository"
)

// Scheduler manages all background maintenance jobs.
type Scheduler struct {
	cron       *cron.Cron
	cfg        *config.Config
	logger     *zap.Logger
	jobRepo    *repository.JobRepository
	progress   *repository.ProgressRepository
	dispatcher *jobs.Dispatcher
}

// New creates a new cron scheduler.
func New(
	cfg *config.Config,
	jobRepo *repository.JobRepository,
	progress *repository.ProgressRepository,
	dispatcher *jobs.Dispatcher,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		cfg:        cfg,
		logger:     logger,
		jobRepo:    jobRepo,
		progress:   progress,
		dispatcher: dispatcher,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	// Fail stale running jobs - every 5 minutes
	if s.cfg.Jobs.StaleAfter > 0 {
		s.cron.AddFunc("0 */5 * * * *", func() {
			s.logger.Debug("Running: fail stale jobs")
			s.failStaleJobs()
		})
	}

	// Prune progress events of old terminal jobs - daily at 4 AM
	if s.cfg.Jobs.ProgressRetentionDays > 0 {
		s.cron.AddFunc("0 0 4 * * *", func() {
			s.logger.Debug("Running: prune progress events")
			s.pruneProgress()
		})
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// failStaleJobs marks jobs stuck in running past the stale deadline as
// failed. Covers executions lost to a process crash, where no goroutine
// remains to record the terminal state.
func (s *Scheduler) failStaleJobs() {
	defer s.recoverFromPanic("failStaleJobs")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.Jobs.StaleAfter)
	stale, err := s.jobRepo.FindStaleRunning(ctx, cutoff)
	if err != nil {
		s.logger.Error("Stale job lookup failed", zap.Error(err))
		return
	}

	for _, job := range stale {
		reason := fmt.Sprintf("Timed out after %s", s.cfg.Jobs.StaleAfter)
		s.dispatcher.Fail(job.ID, reason)
		s.logger.Warn("Failed stale job",
			zap.String("job_id", job.ID),
			zap.String("job_type", job.Type),
		)
	}

	if len(stale) > 0 {
		s.logger.Info("Stale job sweep completed", zap.Int("failed", len(stale)))
	}
}

// pruneProgress deletes progress events of terminal jobs older than the
// retention horizon.
func (s *Scheduler) pruneProgress() {
	defer s.recoverFromPanic("pruneProgress")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.cfg.Jobs.ProgressRetentionDays)
	pruned, err := s.progress.PruneOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Progress prune failed", zap.Error(err))
		return
	}

	if pruned > 0 {
		s.logger.Info("Progress events pruned", zap.Int64("deleted", pruned))
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}

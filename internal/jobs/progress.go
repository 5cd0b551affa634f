package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bosun/internal/models"
)

// Publisher fans a progress event out to live subscribers. Publishing is
// best-effort; the durable record is the progress_events table.
type Publisher interface {
	Publish(ctx context.Context, jobID string, payload []byte)
}

type redisPublisher struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func (p *redisPublisher) Publish(ctx context.Context, jobID string, payload []byte) {
	if err := p.client.Publish(ctx, p.prefix+":"+jobID, payload).Err(); err != nil {
		p.logger.Debug("Progress publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, []byte) {}

// NewProgressPublisher builds a Redis publisher and falls back to a no-op
// when Redis is not configured or unreachable.
func NewProgressPublisher(addr, pass string, db int, logger *zap.Logger) (Publisher, error) {
	if addr == "" {
		return noopPublisher{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return noopPublisher{}, err
	}

	return &redisPublisher{
		client: client,
		prefix: "bosun:progress",
		logger: logger,
	}, nil
}

// jobProgress is the per-job ProgressContext handed to handlers. Append
// failures are logged, not surfaced: a lost narrative line must not fail
// the job.
type jobProgress struct {
	jobID  string
	store  ProgressStore
	pub    Publisher
	logger *zap.Logger
}

func newJobProgress(jobID string, store ProgressStore, pub Publisher, logger *zap.Logger) *jobProgress {
	return &jobProgress{jobID: jobID, store: store, pub: pub, logger: logger}
}

func (p *jobProgress) Emit(ctx context.Context, step string, percent int) {
	p.emit(ctx, step, percent, "", false)
}

func (p *jobProgress) EmitDetail(ctx context.Context, step string, percent int, detail string) {
	p.emit(ctx, step, percent, detail, false)
}

func (p *jobProgress) EmitFinal(ctx context.Context, step string, percent int) {
	p.emit(ctx, step, percent, "", true)
}

func (p *jobProgress) emit(ctx context.Context, step string, percent int, detail string, final bool) {
	ev := &models.ProgressEvent{
		JobID:     p.jobID,
		StepLabel: step,
		AIMessage: detail,
		IsFinal:   final,
	}
	if percent >= 0 {
		ev.Percent = &percent
	}

	if err := p.store.Append(ctx, ev); err != nil {
		p.logger.Warn("Failed to append progress event",
			zap.String("job_id", p.jobID),
			zap.String("step", step),
			zap.Error(err))
		return
	}

	if raw, err := json.Marshal(ev); err == nil {
		p.pub.Publish(ctx, p.jobID, raw)
	}
}

package jobs

import (
	"context"
	"time"

	"bosun/internal/models"
)

// Handler implements the business logic of one job type. Run receives the
// job row (payload validation is the handler's job) and a progress context,
// and returns the result document to store on completion. Any returned
// error or panic is converted by the engine to status=failed.
type Handler interface {
	Run(ctx context.Context, job *models.Job, progress ProgressContext) (map[string]interface{}, error)
}

// ProgressContext is the only engine capability a handler receives.
// Emissions are fire-and-forget; handlers emit serially along their own
// control flow so insertion order matches narrative order. A percent
// below zero is stored as null.
type ProgressContext interface {
	Emit(ctx context.Context, step string, percent int)
	EmitDetail(ctx context.Context, step string, percent int, detail string)
	EmitFinal(ctx context.Context, step string, percent int)
}

// JobStore is the slice of the job repository the engine needs.
type JobStore interface {
	FindByID(ctx context.Context, id string) (*models.Job, error)
	MarkRunning(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, result string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) error
}

// ProgressStore is the slice of the progress repository the engine needs.
type ProgressStore interface {
	Append(ctx context.Context, ev *models.ProgressEvent) error
	HasFinal(ctx context.Context, jobID string) (bool, error)
}

package models

import "time"

// Job statuses. Transitions are forward-only:
// pending -> running -> completed | failed.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job stores one durable unit of deferred work.
type Job struct {
	ID          string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	Type        string     `gorm:"column:job_type;size:50;index:idx_jobs_type_status,priority:1" json:"job_type"`
	Payload     string     `gorm:"column:payload;type:longtext" json:"payload"`
	Status      string     `gorm:"column:status;size:30;index:idx_jobs_type_status,priority:2" json:"status"`
	Result      string     `gorm:"column:result;type:longtext" json:"result,omitempty"`
	Error       string     `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// ProgressEvent is one append-only narrative update about a running job.
// Rows are never updated or deleted while the job is live; exactly one
// event per job carries is_final=true once the job reaches a terminal state.
type ProgressEvent struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	JobID     string    `gorm:"column:job_id;size:36;index:idx_progress_events_job" json:"job_id"`
	StepLabel string    `gorm:"column:step_label;size:255" json:"step_label"`
	Percent   *int      `gorm:"column:percent" json:"percent,omitempty"`
	AIMessage string    `gorm:"column:ai_message;type:text" json:"ai_message,omitempty"`
	IsFinal   bool      `gorm:"column:is_final" json:"is_final"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ProgressEvent) TableName() string {
	return "progress_events"
}

package models

import "encoding/json"

// APIResponse is the standard envelope for API endpoints.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// CreateJobRequest creates a pending job row. The payload is opaque here;
// only the handler for the given type validates it.
type CreateJobRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DispatchRequest triggers execution of a previously created job.
type DispatchRequest struct {
	JobID string `json:"job_id"`
}

// DispatchAck is the immediate acknowledgment for a dispatch trigger.
type DispatchAck struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"jobId"`
}

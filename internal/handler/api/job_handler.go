package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bosun/internal/jobs"
	"bosun/internal/models"
)

// JobHandler exposes job creation, the dispatch trigger and the observer
// endpoints (status + progress narrative).
type JobHandler struct {
	repos      *Repos
	dispatcher *jobs.Dispatcher
	logger     *zap.Logger
}

func NewJobHandler(repos *Repos, dispatcher *jobs.Dispatcher, logger *zap.Logger) *JobHandler {
	return &JobHandler{repos: repos, dispatcher: dispatcher, logger: logger}
}

// Create inserts a pending job row.
// POST /api/jobs
func (h *JobHandler) Create(c echo.Context) error {
	var req models.CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, "Invalid request body")
	}
	if req.Type == "" {
		return errorResponse(c, "type is required")
	}

	payload := "{}"
	if len(req.Payload) > 0 {
		payload = string(req.Payload)
	}

	job := &models.Job{
		ID:      uuid.NewString(),
		Type:    req.Type,
		Payload: payload,
		Status:  models.JobStatusPending,
	}
	if err := h.repos.Job.Create(c.Request().Context(), job); err != nil {
		h.logger.Error("Failed to create job", zap.Error(err))
		return errorResponse(c, "Failed to create job")
	}

	return successResponse(c, "Job created", job)
}

// Dispatch triggers execution of a pending job and acknowledges
// immediately; it never waits for the handler. Unknown ids and non-pending
// jobs still get the acknowledgment — the dispatcher logs the no-op.
// POST /api/jobs/dispatch
func (h *JobHandler) Dispatch(c echo.Context) error {
	var req models.DispatchRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, "Invalid request body")
	}
	if req.JobID == "" {
		return errorResponse(c, "job_id is required")
	}

	h.dispatcher.Dispatch(req.JobID)

	return c.JSON(http.StatusAccepted, models.DispatchAck{
		Accepted: true,
		JobID:    req.JobID,
	})
}

// Get returns one job row including status, result and error.
// GET /api/jobs/:id
func (h *JobHandler) Get(c echo.Context) error {
	id := c.Param("id")

	job, err := h.repos.Job.FindByID(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, "Job not found")
	}
	return successResponse(c, "Successful", job)
}

// Progress returns the job's progress events in emission order.
// GET /api/jobs/:id/progress
func (h *JobHandler) Progress(c echo.Context) error {
	id := c.Param("id")

	events, err := h.repos.Progress.ListByJob(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("Failed to list progress events", zap.String("job_id", id), zap.Error(err))
		return errorResponse(c, "Failed to retrieve progress")
	}
	return successResponse(c, "Successful", events)
}

// List returns jobs with pagination, optionally filtered by status.
// GET /api/jobs
func (h *JobHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	page := queryInt(c, "page", 1)
	status := c.QueryParam("status")

	jobsList, total, err := h.repos.Job.FindAll(c.Request().Context(), limit, page, status)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		return errorResponse(c, "Failed to retrieve jobs")
	}
	return successResponse(c, "Successful", paginatedResponse(jobsList, total, page, limit))
}

func queryInt(c echo.Context, key string, defaultVal int) int {
	if v := c.QueryParam(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/threadlens/internal/ai"
	"github.com/kiranshivaraju/threadlens/internal/api/response"
	"github.com/kiranshivaraju/threadlens/internal/store"
	"github.com/kiranshivaraju/threadlens/pkg/models"
)

// Explainer starts a background LLM explain run.
type Explainer interface {
	TriggerExplain(ctx context.Context) (*models.Job, error)
}

// JobReader loads a job by ID.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// JobStatusCache returns the last status written for a job, if still cached.
type JobStatusCache interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

// NewTriggerExplainHandler returns an http.HandlerFunc for POST /api/v1/admin/explain.
func NewTriggerExplainHandler(svc Explainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.TriggerExplain(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, ai.ErrExplainDisabled):
				response.Error(w, http.StatusServiceUnavailable, "EXPLAIN_DISABLED",
					"No AI provider is configured", nil)
			case errors.Is(err, ai.ErrExplainInProgress):
				response.Error(w, http.StatusConflict, "EXPLAIN_IN_PROGRESS",
					"An explain run is already in progress", nil)
			default:
				slog.Error("trigger explain failed", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to start explain run", nil)
			}
			return
		}

		response.Accepted(w, map[string]any{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/admin/jobs/{jobID}.
// A fresher status from the cache wins over the stored row.
func NewGetJobHandler(jobs JobReader, statuses JobStatusCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a UUID", nil)
			return
		}

		job, err := jobs.GetJob(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.Error("get job failed", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		if statuses != nil && !terminal(job.Status) {
			if status, ok, err := statuses.GetJobStatus(r.Context(), id); err == nil && ok {
				job.Status = status
			}
		}

		response.JSON(w, job)
	}
}

func terminal(status string) bool {
	return status == models.JobStatusCompleted || status == models.JobStatusFailed
}

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const JobTypeExplain = "explain"

// Job tracks one background LLM explain run. POST /api/v1/admin/explain returns the job;
// the caller polls GET /api/v1/admin/jobs/{job_id} until status is completed or failed.
type Job struct {
	ID               uuid.UUID  `db:"id"                json:"id"`
	Type             string     `db:"type"              json:"type"`
	Status           string     `db:"status"            json:"status"`
	ThreadsProcessed int        `db:"threads_processed" json:"threads_processed"`
	ThreadsFailed    int        `db:"threads_failed"    json:"threads_failed"`
	ErrorMessage     *string    `db:"error_message"     json:"error_message,omitempty"`
	StartedAt        *time.Time `db:"started_at"        json:"started_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at"      json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"        json:"updated_at"`
}

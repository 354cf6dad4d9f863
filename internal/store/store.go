package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	RecordMessage(ctx context.Context, msg *models.Message) (*models.ThreadActivity, error)
	GetThreadActivity(ctx context.Context, threadID string) (*models.ThreadActivity, error)

	// WithThreadLock runs fn while holding an exclusive lock on threadID.
	// fn must do all its reads and writes through the Store it is given.
	WithThreadLock(ctx context.Context, threadID string, fn func(Store) error) error
	UpsertClassification(ctx context.Context, c *models.RawClassification) error
	GetClassifications(ctx context.Context, threadID string) (heuristic, llm *models.RawClassification, err error)
	ListThreadsToExplain(ctx context.Context, promptVersion string, limit int) ([]*models.ExplainCandidate, error)

	UpsertThread(ctx context.Context, t *models.Thread) error
	GetThread(ctx context.Context, threadID string) (*models.Thread, error)
	ListThreads(ctx context.Context, filter ThreadFilter) ([]*models.Thread, error)
	ListThreadsSince(ctx context.Context, since time.Time) ([]*models.Thread, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

// ThreadFilter narrows ListThreads. Zero-valued fields are ignored.
type ThreadFilter struct {
	Status    models.ThreadStatus
	Sentiment *sentiment.Sentiment
	Owner     models.Owner
	Limit     int
}

type jobUpdateParams struct {
	ErrorMessage     *string
	ThreadsProcessed *int
	ThreadsFailed    *int
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// WithThreadCounts records how many threads a job explained and how many failed.
func WithThreadCounts(processed, failed int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ThreadsProcessed = &processed
		p.ThreadsFailed = &failed
	}
}

// ApplyJobUpdate applies status and opts to job in memory, following the
// same rules as a database update. It does not check the transition.
func ApplyJobUpdate(job *models.Job, status string, now time.Time, opts ...JobUpdateOption) {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	job.Status = status
	job.UpdatedAt = now
	switch status {
	case models.JobStatusRunning:
		job.StartedAt = &now
	case models.JobStatusCompleted, models.JobStatusFailed:
		job.CompletedAt = &now
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.ThreadsProcessed != nil {
		job.ThreadsProcessed = *params.ThreadsProcessed
		job.ThreadsFailed = *params.ThreadsFailed
	}
}

// JobTransitionAllowed reports whether a job may move from one status to another.
func JobTransitionAllowed(from, to string) bool {
	return transitionAllowed(from, to)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

const (
	defaultThreadLimit = config.MaxThreadListLimit
	maxThreadLimit     = config.MaxThreadListLimit
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Messages & Activity ---

// RecordMessage stores msg and bumps the thread's activity in one transaction.
// Re-delivering a message_id is a no-op that returns the current activity.
func (s *PostgresStore) RecordMessage(ctx context.Context, msg *models.Message) (*models.ThreadActivity, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record message: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO thread_messages (message_id, thread_id, body_text, event_ts, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (message_id) DO NOTHING`,
		msg.MessageID, msg.ThreadID, msg.BodyText, msg.EventTS, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if tag.RowsAffected() == 1 {
		_, err = tx.Exec(ctx,
			`INSERT INTO thread_activity (thread_id, last_message_ts, message_count, updated_at)
			 VALUES ($1, $2, 1, NOW())
			 ON CONFLICT (thread_id) DO UPDATE SET
			   last_message_ts = GREATEST(thread_activity.last_message_ts, EXCLUDED.last_message_ts),
			   message_count = thread_activity.message_count + 1,
			   updated_at = NOW()`,
			msg.ThreadID, msg.EventTS)
		if err != nil {
			return nil, fmt.Errorf("update thread activity: %w", err)
		}
	}

	var a models.ThreadActivity
	err = tx.QueryRow(ctx,
		`SELECT thread_id, last_message_ts, message_count, updated_at
		 FROM thread_activity WHERE thread_id = $1`, msg.ThreadID,
	).Scan(&a.ThreadID, &a.LastMessageTS, &a.MessageCount, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate message_id filed under a different thread.
		return nil, ErrDuplicateKey
	}
	if err != nil {
		return nil, fmt.Errorf("read thread activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit record message: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) GetThreadActivity(ctx context.Context, threadID string) (*models.ThreadActivity, error) {
	var a models.ThreadActivity
	err := s.db.QueryRow(ctx,
		`SELECT thread_id, last_message_ts, message_count, updated_at
		 FROM thread_activity WHERE thread_id = $1`, threadID,
	).Scan(&a.ThreadID, &a.LastMessageTS, &a.MessageCount, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread activity: %w", err)
	}
	return &a, nil
}

// --- Classifications ---

// WithThreadLock runs fn inside one transaction that holds a transaction-scoped
// advisory lock on threadID. Writers for the same thread queue behind each
// other, in this process and across replicas. The Store passed to fn is bound
// to the transaction; returning an error rolls everything back.
func (s *PostgresStore) WithThreadLock(ctx context.Context, threadID string, fn func(Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin thread update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, threadID); err != nil {
		return fmt.Errorf("lock thread %s: %w", threadID, err)
	}

	if err := fn(&PostgresStore{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit thread update: %w", err)
	}
	return nil
}

// UpsertClassification replaces the stored signal for (thread_id, source).
func (s *PostgresStore) UpsertClassification(ctx context.Context, c *models.RawClassification) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO thread_classifications
		   (thread_id, source, sentiment_label, confidence, status_guess, reason,
		    next_action_owner_guess, model_name, prompt_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (thread_id, source) DO UPDATE SET
		   sentiment_label = EXCLUDED.sentiment_label,
		   confidence = EXCLUDED.confidence,
		   status_guess = EXCLUDED.status_guess,
		   reason = EXCLUDED.reason,
		   next_action_owner_guess = EXCLUDED.next_action_owner_guess,
		   model_name = EXCLUDED.model_name,
		   prompt_version = EXCLUDED.prompt_version,
		   created_at = EXCLUDED.created_at`,
		c.ThreadID, string(c.Source), c.SentimentLabel, c.Confidence, string(c.StatusGuess), c.Reason,
		ownerArg(c.NextActionOwnerGuess), c.ModelName, c.PromptVersion, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}
	return nil
}

// GetClassifications returns the stored heuristic and LLM signals; either may be nil.
func (s *PostgresStore) GetClassifications(ctx context.Context, threadID string) (*models.RawClassification, *models.RawClassification, error) {
	rows, err := s.db.Query(ctx,
		`SELECT thread_id, source, sentiment_label, confidence, status_guess, reason,
		        next_action_owner_guess, model_name, prompt_version, created_at
		 FROM thread_classifications WHERE thread_id = $1`, threadID)
	if err != nil {
		return nil, nil, fmt.Errorf("get classifications: %w", err)
	}
	defer rows.Close()

	var heuristic, llm *models.RawClassification
	for rows.Next() {
		var (
			c      models.RawClassification
			source string
			status string
			owner  *string
		)
		if err := rows.Scan(&c.ThreadID, &source, &c.SentimentLabel, &c.Confidence, &status, &c.Reason,
			&owner, &c.ModelName, &c.PromptVersion, &c.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan classification: %w", err)
		}
		c.Source = models.Source(source)
		c.StatusGuess = models.ThreadStatus(status)
		c.NextActionOwnerGuess = toOwner(owner)

		switch c.Source {
		case models.SourceHeuristic:
			heuristic = &c
		case models.SourceLLM:
			llm = &c
		}
	}
	return heuristic, llm, rows.Err()
}

// ListThreadsToExplain returns threads with no LLM verdict at promptVersion,
// freshest first, with their two most recent message bodies.
func (s *PostgresStore) ListThreadsToExplain(ctx context.Context, promptVersion string, limit int) ([]*models.ExplainCandidate, error) {
	rows, err := s.db.Query(ctx,
		`WITH ranked AS (
		   SELECT thread_id, body_text,
		          ROW_NUMBER() OVER (PARTITION BY thread_id ORDER BY event_ts DESC, message_id DESC) AS rn
		   FROM thread_messages
		 )
		 SELECT a.thread_id, h.status_guess, last_msg.body_text, prev_msg.body_text
		 FROM thread_activity a
		 JOIN ranked last_msg ON last_msg.thread_id = a.thread_id AND last_msg.rn = 1
		 LEFT JOIN ranked prev_msg ON prev_msg.thread_id = a.thread_id AND prev_msg.rn = 2
		 LEFT JOIN thread_classifications h ON h.thread_id = a.thread_id AND h.source = 'heuristic'
		 LEFT JOIN thread_classifications l ON l.thread_id = a.thread_id AND l.source = 'llm'
		   AND l.prompt_version = $1
		 WHERE l.thread_id IS NULL
		 ORDER BY a.last_message_ts DESC, a.thread_id
		 LIMIT $2`, promptVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("list threads to explain: %w", err)
	}
	defer rows.Close()

	candidates := []*models.ExplainCandidate{}
	for rows.Next() {
		var (
			c      models.ExplainCandidate
			status *string
		)
		if err := rows.Scan(&c.ThreadID, &status, &c.LastMessage, &c.PreviousMessage); err != nil {
			return nil, fmt.Errorf("scan explain candidate: %w", err)
		}
		if status != nil {
			st := models.ThreadStatus(*status)
			c.HeuristicStatus = &st
		}
		candidates = append(candidates, &c)
	}
	return candidates, rows.Err()
}

// --- Threads ---

const threadColumns = `thread_id, last_message_ts, message_count, thread_status, status_source,
	status_reason, status_confidence, next_action_owner, sentiment, confidence, model_name, prompt_version`

// UpsertThread writes the reconciled record, replacing any previous version.
func (s *PostgresStore) UpsertThread(ctx context.Context, t *models.Thread) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO threads (`+threadColumns+`, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		 ON CONFLICT (thread_id) DO UPDATE SET
		   last_message_ts = EXCLUDED.last_message_ts,
		   message_count = EXCLUDED.message_count,
		   thread_status = EXCLUDED.thread_status,
		   status_source = EXCLUDED.status_source,
		   status_reason = EXCLUDED.status_reason,
		   status_confidence = EXCLUDED.status_confidence,
		   next_action_owner = EXCLUDED.next_action_owner,
		   sentiment = EXCLUDED.sentiment,
		   confidence = EXCLUDED.confidence,
		   model_name = EXCLUDED.model_name,
		   prompt_version = EXCLUDED.prompt_version,
		   updated_at = NOW()`,
		t.ThreadID, t.LastMessageTS, t.MessageCount, string(t.Status), string(t.StatusSource),
		t.StatusReason, t.StatusConfidence, ownerArg(t.NextActionOwner), t.Sentiment.String(),
		t.Confidence, t.ModelName, t.PromptVersion)
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE thread_id = $1`, threadID)
	t, err := scanThread(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

// ListThreads returns threads ordered by most recent activity first.
func (s *PostgresStore) ListThreads(ctx context.Context, filter ThreadFilter) ([]*models.Thread, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("thread_status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Sentiment != nil {
		conditions = append(conditions, fmt.Sprintf("sentiment = $%d", argIdx))
		args = append(args, filter.Sentiment.String())
		argIdx++
	}
	if filter.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("next_action_owner = $%d", argIdx))
		args = append(args, string(filter.Owner))
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultThreadLimit
	}
	if limit > maxThreadLimit {
		limit = maxThreadLimit
	}

	query := fmt.Sprintf(
		`SELECT %s FROM threads WHERE %s ORDER BY last_message_ts DESC, thread_id LIMIT $%d`,
		threadColumns, strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()
	return scanThreads(rows)
}

// ListThreadsSince returns every thread whose last message is at or after since.
func (s *PostgresStore) ListThreadsSince(ctx context.Context, since time.Time) ([]*models.Thread, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE last_message_ts >= $1 ORDER BY last_message_ts`, since)
	if err != nil {
		return nil, fmt.Errorf("list threads since: %w", err)
	}
	defer rows.Close()
	return scanThreads(rows)
}

func scanThreads(rows pgx.Rows) ([]*models.Thread, error) {
	threads := []*models.Thread{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func scanThread(row pgx.Row) (*models.Thread, error) {
	var (
		t             models.Thread
		status        string
		source        string
		owner         *string
		sentimentText string
	)
	if err := row.Scan(&t.ThreadID, &t.LastMessageTS, &t.MessageCount, &status, &source,
		&t.StatusReason, &t.StatusConfidence, &owner, &sentimentText, &t.Confidence,
		&t.ModelName, &t.PromptVersion); err != nil {
		return nil, err
	}
	t.LastMessageTS = t.LastMessageTS.UTC()
	t.Status = models.ThreadStatus(status)
	t.StatusSource = models.Source(source)
	t.NextActionOwner = toOwner(owner)
	t.Sentiment = sentiment.Normalize(sentimentText)
	return &t, nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO jobs (id, type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Type, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.db.QueryRow(ctx,
		`SELECT id, type, status, threads_processed, threads_failed, error_message,
		        started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Type, &j.Status, &j.ThreadsProcessed, &j.ThreadsFailed, &j.ErrorMessage,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

var validTransitions = map[string][]string{
	// A job that never got to running can still be failed.
	models.JobStatusPending: {models.JobStatusRunning, models.JobStatusFailed},
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusFailed},
}

// UpdateJobStatus moves a job along pending -> running -> completed|failed,
// or straight from pending to failed.
// The write is conditional on the status read, so a concurrent update fails
// instead of being overwritten.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	from := job.Status
	if !transitionAllowed(from, status) {
		return fmt.Errorf("invalid job status transition: %s -> %s", from, status)
	}
	ApplyJobUpdate(job, status, time.Now().UTC(), opts...)

	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = $3, started_at = $4, completed_at = $5,
		        error_message = $6, threads_processed = $7, threads_failed = $8
		 WHERE id = $1 AND status = $9`,
		job.ID, job.Status, job.UpdatedAt, job.StartedAt, job.CompletedAt,
		job.ErrorMessage, job.ThreadsProcessed, job.ThreadsFailed, from)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job status: job %s changed concurrently", id)
	}
	return nil
}

func transitionAllowed(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func ownerArg(o *models.Owner) *string {
	if o == nil {
		return nil
	}
	v := string(*o)
	return &v
}

func toOwner(s *string) *models.Owner {
	if s == nil {
		return nil
	}
	o := models.Owner(*s)
	return &o
}

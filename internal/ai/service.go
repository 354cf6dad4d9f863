package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/threadlens/internal/ai/prompt"
	"github.com/kiranshivaraju/threadlens/internal/cache"
	"github.com/kiranshivaraju/threadlens/internal/metrics"
	"github.com/kiranshivaraju/threadlens/internal/store"
	"github.com/kiranshivaraju/threadlens/pkg/models"
)

const (
	jobStatusTTL = 30 * time.Minute
	runLockTTL   = 30 * time.Minute
)

// SignalRecorder stores a classifier verdict and re-reconciles its thread.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, sig *models.RawClassification) (*models.Thread, error)
}

// ExplainConfig tunes an ExplainService. Zero values fall back to defaults.
type ExplainConfig struct {
	BatchLimit       int
	PromptVersion    string
	MaxRetries       int
	InferenceTimeout time.Duration
	// RetryDelay is the first backoff step; later steps double up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func (c ExplainConfig) withDefaults() ExplainConfig {
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
	if c.PromptVersion == "" {
		c.PromptVersion = "thread_state_v0.1"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InferenceTimeout <= 0 {
		c.InferenceTimeout = 60 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 1500 * time.Millisecond
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = 10 * c.RetryDelay
	}
	return c
}

// ExplainService asks the LLM to explain threads that have no verdict at the
// current prompt version and feeds each verdict back as an llm signal.
type ExplainService struct {
	provider models.AIProvider
	store    store.Store
	cache    cache.Cache
	recorder SignalRecorder
	metrics  *metrics.Metrics
	cfg      ExplainConfig
	executor failsafe.Executor[prompt.Verdict]
}

// NewExplainService creates an ExplainService. provider may be nil, in which
// case TriggerExplain reports ErrExplainDisabled. m may be nil.
func NewExplainService(provider models.AIProvider, st store.Store, ca cache.Cache, rec SignalRecorder, m *metrics.Metrics, cfg ExplainConfig) *ExplainService {
	cfg = cfg.withDefaults()

	retry := retrypolicy.NewBuilder[prompt.Verdict]().
		WithBackoff(cfg.RetryDelay, cfg.MaxRetryDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ prompt.Verdict, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		Build()

	return &ExplainService{
		provider: provider,
		store:    st,
		cache:    ca,
		recorder: rec,
		metrics:  m,
		cfg:      cfg,
		executor: failsafe.With[prompt.Verdict](retry),
	}
}

// Enabled reports whether a provider is configured.
func (s *ExplainService) Enabled() bool {
	return s.provider != nil
}

// TriggerExplain creates a pending job and dispatches the explain run in a background goroutine.
// Returns the job immediately without waiting for the run to complete.
func (s *ExplainService) TriggerExplain(ctx context.Context) (*models.Job, error) {
	if s.provider == nil {
		return nil, ErrExplainDisabled
	}

	lockKey := cache.ExplainLockKey(s.cfg.PromptVersion)
	acquired, err := s.cache.AcquireLock(ctx, lockKey, runLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring explain lock: %w", err)
	}
	if !acquired {
		return nil, ErrExplainInProgress
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Type:      models.JobTypeExplain,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		_ = s.cache.ReleaseLock(ctx, lockKey)
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, jobStatusTTL)

	go s.runExplain(job.ID, lockKey)

	return job, nil
}

// runExplain performs the batch in a goroutine.
// It recovers from panics and always marks the job as completed or failed.
func (s *ExplainService) runExplain(jobID uuid.UUID, lockKey string) {
	ctx := context.Background()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in runExplain", "error", r, "job_id", jobID)
			s.finish(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(fmt.Sprintf("panic: %v", r)))
		}
		_ = s.cache.ReleaseLock(ctx, lockKey)
		s.metrics.ObserveExplainRun(time.Since(start))
	}()

	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusRunning); err != nil {
		slog.Error("failed to mark explain job running", "job_id", jobID, "error", err)
		s.finish(ctx, jobID, models.JobStatusFailed,
			store.WithErrorMessage(fmt.Sprintf("marking job running: %v", err)))
		return
	}
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusRunning, jobStatusTTL)

	candidates, err := s.store.ListThreadsToExplain(ctx, s.cfg.PromptVersion, s.cfg.BatchLimit)
	if err != nil {
		s.finish(ctx, jobID, models.JobStatusFailed,
			store.WithErrorMessage(fmt.Sprintf("fetching candidates: %v", err)))
		return
	}

	var (
		processed, failed int
		lastErr           error
	)
	for _, c := range candidates {
		if err := s.explainOne(ctx, c); err != nil {
			failed++
			lastErr = err
			s.metrics.IncExplain(metrics.OutcomeFailed)
			slog.Warn("explain failed", "job_id", jobID, "thread_id", c.ThreadID, "error", err)
			continue
		}
		processed++
		s.metrics.IncExplain(metrics.OutcomeExplained)
	}

	slog.Info("explain run finished",
		"job_id", jobID,
		"candidates", len(candidates),
		"explained", processed,
		"failed", failed,
		"duration", time.Since(start))

	if len(candidates) > 0 && processed == 0 {
		s.finish(ctx, jobID, models.JobStatusFailed,
			store.WithThreadCounts(processed, failed),
			store.WithErrorMessage(fmt.Sprintf("all %d threads failed: %v", failed, lastErr)))
		return
	}

	s.finish(ctx, jobID, models.JobStatusCompleted, store.WithThreadCounts(processed, failed))
}

func (s *ExplainService) finish(ctx context.Context, jobID uuid.UUID, status string, opts ...store.JobUpdateOption) {
	if err := s.store.UpdateJobStatus(ctx, jobID, status, opts...); err != nil {
		slog.Error("failed to update job status", "job_id", jobID, "status", status, "error", err)
	}
	_ = s.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL)
}

// explainOne classifies a single candidate and records the verdict.
func (s *ExplainService) explainOne(ctx context.Context, c *models.ExplainCandidate) error {
	in := prompt.Input{LastMessage: c.LastMessage}
	if c.HeuristicStatus != nil {
		in.HeuristicStatus = string(*c.HeuristicStatus)
	}
	if c.PreviousMessage != nil {
		in.PreviousMessage = *c.PreviousMessage
	}
	req := prompt.Build(in)

	verdict, err := s.executor.WithContext(ctx).Get(func() (prompt.Verdict, error) {
		return s.classify(ctx, req)
	})
	if err != nil {
		return err
	}

	owner := verdict.Owner
	sig := &models.RawClassification{
		ThreadID:             c.ThreadID,
		Source:               models.SourceLLM,
		SentimentLabel:       verdict.Sentiment.String(),
		Confidence:           verdict.Confidence,
		StatusGuess:          verdict.Status,
		NextActionOwnerGuess: &owner,
		ModelName:            s.provider.Model(),
		PromptVersion:        s.cfg.PromptVersion,
		CreatedAt:            time.Now().UTC(),
	}
	if verdict.Reason != "" {
		reason := verdict.Reason
		sig.Reason = &reason
	}

	if _, err := s.recorder.RecordSignal(ctx, sig); err != nil {
		return fmt.Errorf("recording verdict: %w", err)
	}
	return nil
}

// classify makes one provider call under the inference timeout.
func (s *ExplainService) classify(ctx context.Context, req models.CompletionRequest) (prompt.Verdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	defer cancel()

	text, err := s.provider.Complete(callCtx, req)
	if err != nil {
		if errors.Is(err, ErrInferenceTimeout) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return prompt.Verdict{}, fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		if errors.Is(err, ErrProviderUnavailable) {
			return prompt.Verdict{}, err
		}
		return prompt.Verdict{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	verdict, err := prompt.Parse(text)
	if err != nil {
		return prompt.Verdict{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return verdict, nil
}

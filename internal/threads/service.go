// Package threads is the application layer over the thread store. It keeps the
// reconciled Thread record in step with incoming messages and classifier
// signals, and serves the read paths used by the dashboard.
package threads

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/kiranshivaraju/threadlens/internal/aggregate"
	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/internal/metrics"
	"github.com/kiranshivaraju/threadlens/internal/reconcile"
	"github.com/kiranshivaraju/threadlens/internal/store"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

const (
	MaxListLimit        = config.MaxThreadListLimit
	MaxAggregateMonths  = config.MaxAggregateMonths
	defaultListLimit    = config.MaxThreadListLimit
	defaultWindowMonths = 6

	lockStripes = 64
)

var (
	ErrInvalidLimit   = fmt.Errorf("limit must be between 1 and %d", MaxListLimit)
	ErrWindowTooLarge = fmt.Errorf("aggregation window exceeds %d months", MaxAggregateMonths)
	ErrInvalidSignal  = errors.New("invalid classification signal")
	ErrInvalidMessage = errors.New("invalid message")
	ErrThreadNotFound = errors.New("thread not found")
)

// ThreadQuery filters ListThreads. A zero Limit means the configured default.
type ThreadQuery struct {
	Limit     int
	Status    models.ThreadStatus
	Sentiment *sentiment.Sentiment
	Owner     models.Owner
}

// MessageResult is returned by RecordMessage. Thread is nil until the thread
// has at least one classification signal.
type MessageResult struct {
	Activity *models.ThreadActivity `json:"activity"`
	Thread   *models.Thread         `json:"thread,omitempty"`
}

// Config tunes the service. Zero values fall back to package defaults.
type Config struct {
	DefaultListLimit    int
	DefaultWindowMonths int
	Now                 func() time.Time
}

// Service is safe for concurrent use.
type Service struct {
	store      store.Store
	reconciler *reconcile.Reconciler
	aggregator *aggregate.Aggregator
	metrics    *metrics.Metrics
	cfg        Config

	// Writers for one thread share a stripe; the store lock covers other replicas.
	locks [lockStripes]sync.Mutex
}

// NewService creates a Service. m may be nil.
func NewService(st store.Store, rec *reconcile.Reconciler, m *metrics.Metrics, cfg Config) *Service {
	if cfg.DefaultListLimit <= 0 {
		cfg.DefaultListLimit = defaultListLimit
	}
	if cfg.DefaultWindowMonths <= 0 {
		cfg.DefaultWindowMonths = defaultWindowMonths
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:      st,
		reconciler: rec,
		aggregator: aggregate.New(aggregate.Config{Now: cfg.Now}),
		metrics:    m,
		cfg:        cfg,
	}
}

// DefaultListLimit is the page size used when a caller does not name one.
func (s *Service) DefaultListLimit() int {
	return s.cfg.DefaultListLimit
}

// DefaultWindowMonths is the window used when a caller does not name one.
func (s *Service) DefaultWindowMonths() int {
	return s.cfg.DefaultWindowMonths
}

// ListThreads returns reconciled threads, most recently active first.
func (s *Service) ListThreads(ctx context.Context, q ThreadQuery) ([]*models.Thread, error) {
	limit := q.Limit
	if limit == 0 {
		limit = s.cfg.DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, q.Limit)
	}

	threads, err := s.store.ListThreads(ctx, store.ThreadFilter{
		Status:    q.Status,
		Sentiment: q.Sentiment,
		Owner:     q.Owner,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return threads, nil
}

func (s *Service) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	t, err := s.store.GetThread(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting thread: %w", err)
	}
	return t, nil
}

// MonthlyAggregates summarizes the last months calendar months, oldest first.
func (s *Service) MonthlyAggregates(ctx context.Context, months int) ([]models.MonthlyAggregate, error) {
	if months <= 0 {
		return nil, fmt.Errorf("%w: got %d", aggregate.ErrInvalidWindow, months)
	}
	if months > MaxAggregateMonths {
		return nil, fmt.Errorf("%w: got %d", ErrWindowTooLarge, months)
	}

	threads, err := s.store.ListThreadsSince(ctx, s.aggregator.Since(months))
	if err != nil {
		return nil, fmt.Errorf("loading threads for aggregation: %w", err)
	}

	values := make([]models.Thread, 0, len(threads))
	for _, t := range threads {
		values = append(values, *t)
	}

	result, err := s.aggregator.Aggregate(values, months)
	if err != nil {
		return nil, err
	}
	s.metrics.IncAggregate()
	return result, nil
}

// RecordMessage stores an interaction event and re-reconciles the thread when
// it already has classification signals.
func (s *Service) RecordMessage(ctx context.Context, msg *models.Message) (*MessageResult, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.cfg.Now().UTC()
	}

	activity, err := s.store.RecordMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}

	thread, err := s.update(ctx, msg.ThreadID, func(tx store.Store) (*models.Thread, error) {
		return s.refresh(ctx, tx, msg.ThreadID)
	})
	if err != nil && !errors.Is(err, reconcile.ErrMissingClassification) {
		return nil, err
	}

	return &MessageResult{Activity: activity, Thread: thread}, nil
}

// RecordSignal stores one classifier verdict, replacing any earlier verdict
// from the same source, and returns the freshly reconciled thread.
func (s *Service) RecordSignal(ctx context.Context, sig *models.RawClassification) (*models.Thread, error) {
	if err := validateSignal(sig); err != nil {
		return nil, err
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = s.cfg.Now().UTC()
	}

	if sentiment.Normalize(sig.SentimentLabel) == sentiment.Unknown {
		slog.Warn("unrecognized sentiment label",
			"thread_id", sig.ThreadID,
			"source", sig.Source,
			"label", sig.SentimentLabel)
		s.metrics.IncUnknownLabel(string(sig.Source))
	}

	return s.update(ctx, sig.ThreadID, func(tx store.Store) (*models.Thread, error) {
		if err := tx.UpsertClassification(ctx, sig); err != nil {
			return nil, fmt.Errorf("storing signal: %w", err)
		}
		return s.refresh(ctx, tx, sig.ThreadID)
	})
}

// update runs fn with threadID locked, so the signals it reads are the ones
// the saved record is built from.
func (s *Service) update(ctx context.Context, threadID string, fn func(tx store.Store) (*models.Thread, error)) (*models.Thread, error) {
	unlock := s.lockThread(threadID)
	defer unlock()

	var thread *models.Thread
	err := s.store.WithThreadLock(ctx, threadID, func(tx store.Store) error {
		var err error
		thread, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncReconciliation(string(thread.StatusSource))
	slog.Debug("thread reconciled",
		"thread_id", threadID,
		"status", thread.Status,
		"status_source", thread.StatusSource,
		"sentiment", thread.Sentiment)

	return thread, nil
}

func (s *Service) lockThread(threadID string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(threadID))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// refresh rebuilds and stores the reconciled record from the current signals.
func (s *Service) refresh(ctx context.Context, st store.Store, threadID string) (*models.Thread, error) {
	heuristic, llm, err := st.GetClassifications(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading signals: %w", err)
	}

	thread, err := s.reconciler.Reconcile(threadID, heuristic, llm)
	if err != nil {
		return nil, err
	}

	activity, err := st.GetThreadActivity(ctx, threadID)
	switch {
	case err == nil:
		thread.LastMessageTS = activity.LastMessageTS.UTC()
		thread.MessageCount = activity.MessageCount
	case errors.Is(err, store.ErrNotFound):
		// Signals can arrive before any message; date the thread by its newest signal.
		thread.LastMessageTS = latestSignal(heuristic, llm)
	default:
		return nil, fmt.Errorf("loading activity: %w", err)
	}

	if err := st.UpsertThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("storing thread: %w", err)
	}
	return thread, nil
}

func latestSignal(sigs ...*models.RawClassification) time.Time {
	var latest time.Time
	for _, sig := range sigs {
		if sig != nil && sig.CreatedAt.After(latest) {
			latest = sig.CreatedAt
		}
	}
	return latest.UTC()
}

func validateMessage(msg *models.Message) error {
	switch {
	case msg == nil:
		return fmt.Errorf("%w: empty body", ErrInvalidMessage)
	case strings.TrimSpace(msg.ThreadID) == "":
		return fmt.Errorf("%w: thread_id is required", ErrInvalidMessage)
	case strings.TrimSpace(msg.MessageID) == "":
		return fmt.Errorf("%w: message_id is required", ErrInvalidMessage)
	case msg.EventTS.IsZero():
		return fmt.Errorf("%w: event_ts is required", ErrInvalidMessage)
	}
	return nil
}

func validateSignal(sig *models.RawClassification) error {
	if sig == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidSignal)
	}
	if strings.TrimSpace(sig.ThreadID) == "" {
		return fmt.Errorf("%w: thread_id is required", ErrInvalidSignal)
	}
	if !sig.Source.Valid() {
		return fmt.Errorf("%w: source must be heuristic or llm, got %q", ErrInvalidSignal, sig.Source)
	}
	if !sig.StatusGuess.Valid() {
		return fmt.Errorf("%w: status_guess must be open or closed, got %q", ErrInvalidSignal, sig.StatusGuess)
	}
	if sig.NextActionOwnerGuess != nil && !sig.NextActionOwnerGuess.Valid() {
		return fmt.Errorf("%w: next_action_owner_guess must be org, customer or none, got %q",
			ErrInvalidSignal, *sig.NextActionOwnerGuess)
	}
	if math.IsNaN(sig.Confidence) || sig.Confidence < 0 || sig.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1, got %v", ErrInvalidSignal, sig.Confidence)
	}
	if strings.TrimSpace(sig.SentimentLabel) == "" {
		return fmt.Errorf("%w: sentiment_label is required", ErrInvalidSignal)
	}
	return nil
}

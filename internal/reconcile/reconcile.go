// Package reconcile merges heuristic and LLM classification signals for a
// thread into one authoritative Thread record.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

// DefaultLLMConfidenceThreshold is the minimum LLM confidence needed to
// override a heuristic status verdict.
const DefaultLLMConfidenceThreshold = 0.7

var (
	ErrMissingClassification = errors.New("no classification signal for thread")
	ErrThreadMismatch        = errors.New("classification belongs to a different thread")
	ErrWrongSource           = errors.New("classification passed in the wrong source slot")
)

// Config controls reconciliation.
type Config struct {
	LLMConfidenceThreshold float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{LLMConfidenceThreshold: DefaultLLMConfidenceThreshold}
}

// Reconciler is stateless and safe for concurrent use.
type Reconciler struct {
	cfg Config
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg}
}

// Threshold returns the configured LLM confidence threshold.
func (r *Reconciler) Threshold() float64 {
	return r.cfg.LLMConfidenceThreshold
}

// Reconcile derives the Thread record for threadID from its heuristic and LLM
// signals, either of which may be nil.
//
// Status is decided by the first matching rule:
//  1. no signals: ErrMissingClassification
//  2. one signal: it wins
//  3. LLM confidence >= threshold: the LLM wins outright
//  4. otherwise the heuristic wins and its reason records the LLM verdict
//
// Sentiment is decided separately: higher confidence wins, ties go to the LLM.
// Activity fields (LastMessageTS, MessageCount) are left zero for the caller.
func (r *Reconciler) Reconcile(threadID string, heuristic, llm *models.RawClassification) (*models.Thread, error) {
	if heuristic == nil && llm == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingClassification, threadID)
	}
	if err := checkSignal(threadID, models.SourceHeuristic, heuristic); err != nil {
		return nil, err
	}
	if err := checkSignal(threadID, models.SourceLLM, llm); err != nil {
		return nil, err
	}

	t := &models.Thread{ThreadID: threadID}
	r.applyStatus(t, heuristic, llm)
	applySentiment(t, heuristic, llm)
	return t, nil
}

func checkSignal(threadID string, want models.Source, sig *models.RawClassification) error {
	if sig == nil {
		return nil
	}
	if sig.ThreadID != threadID {
		return fmt.Errorf("%w: got %q, want %q", ErrThreadMismatch, sig.ThreadID, threadID)
	}
	if sig.Source != want {
		return fmt.Errorf("%w: got %q in %s slot", ErrWrongSource, sig.Source, want)
	}
	return nil
}

func (r *Reconciler) applyStatus(t *models.Thread, heuristic, llm *models.RawClassification) {
	switch {
	case heuristic == nil:
		takeStatus(t, llm)
	case llm == nil:
		takeStatus(t, heuristic)
	case clamp(llm.Confidence) >= r.cfg.LLMConfidenceThreshold:
		takeStatus(t, llm)
	default:
		takeStatus(t, heuristic)
		reason := annotate(heuristic, llm, r.cfg.LLMConfidenceThreshold)
		t.StatusReason = &reason
	}
}

func takeStatus(t *models.Thread, sig *models.RawClassification) {
	conf := clamp(sig.Confidence)
	t.Status = sig.StatusGuess
	t.StatusSource = sig.Source
	t.StatusConfidence = &conf
	t.StatusReason = copyString(sig.Reason)
	if sig.NextActionOwnerGuess != nil {
		owner := *sig.NextActionOwnerGuess
		t.NextActionOwner = &owner
	}
}

// annotate appends the overruled LLM verdict to the heuristic reason.
func annotate(heuristic, llm *models.RawClassification, threshold float64) string {
	verb := "agreed"
	if llm.StatusGuess != heuristic.StatusGuess {
		verb = "disagreed"
	}
	note := fmt.Sprintf("LLM %s (%s) at confidence %.2f, below threshold %.2f",
		verb, llm.StatusGuess, clamp(llm.Confidence), threshold)
	if heuristic.Reason == nil || *heuristic.Reason == "" {
		return note
	}
	return *heuristic.Reason + " [" + note + "]"
}

func applySentiment(t *models.Thread, heuristic, llm *models.RawClassification) {
	winner := llm
	switch {
	case llm == nil:
		winner = heuristic
	case heuristic != nil && clamp(heuristic.Confidence) > clamp(llm.Confidence):
		winner = heuristic
	}
	t.Sentiment = sentiment.Normalize(winner.SentimentLabel)
	t.Confidence = clamp(winner.Confidence)
	t.ModelName = winner.ModelName
	t.PromptVersion = winner.PromptVersion
}

// clamp bounds c to [0, 1].
func clamp(c float64) float64 {
	if c < 0 || c != c {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

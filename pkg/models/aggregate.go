package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

var (
	ErrMixedTaxonomy         = errors.New("aggregate payload mixes legacy and five-class counts")
	ErrMissingCounts         = errors.New("aggregate payload has no sentiment counts")
	ErrInconsistentAggregate = errors.New("aggregate counts do not add up to thread_count")
)

// MonthlyAggregate is the sentiment rollup for one calendar month.
// Counts holds the five named levels; threads with Unknown sentiment are
// tallied in UnknownThreads, so the named counts plus UnknownThreads always
// equal ThreadCount.
type MonthlyAggregate struct {
	Month          string
	ThreadCount    int
	Counts         map[sentiment.Sentiment]int
	UnknownThreads int
	Taxonomy       sentiment.Taxonomy
}

// NewMonthlyAggregate returns an empty five-class bucket for month ("YYYY-MM").
func NewMonthlyAggregate(month string) MonthlyAggregate {
	counts := make(map[sentiment.Sentiment]int, 5)
	for _, s := range sentiment.Canonical() {
		counts[s] = 0
	}
	return MonthlyAggregate{Month: month, Counts: counts, Taxonomy: sentiment.Emotion5}
}

// Add tallies one thread with sentiment s.
func (a *MonthlyAggregate) Add(s sentiment.Sentiment) {
	a.ThreadCount++
	if !s.Known() {
		a.UnknownThreads++
		return
	}
	a.Counts[s]++
}

// Count returns the tally for s. Unknown returns UnknownThreads.
func (a MonthlyAggregate) Count(s sentiment.Sentiment) int {
	if !s.Known() {
		return a.UnknownThreads
	}
	return a.Counts[s]
}

// NamedTotal sums the five named buckets.
func (a MonthlyAggregate) NamedTotal() int {
	total := 0
	for _, s := range sentiment.Canonical() {
		total += a.Counts[s]
	}
	return total
}

// Percent returns the share of threads with sentiment s, rounded to one decimal.
// An empty month reports zero for every bucket.
func (a MonthlyAggregate) Percent(s sentiment.Sentiment) float64 {
	if a.ThreadCount == 0 {
		return 0
	}
	return math.Round(float64(a.Count(s))*1000/float64(a.ThreadCount)) / 10
}

// Validate checks the count invariant.
func (a MonthlyAggregate) Validate() error {
	if a.UnknownThreads < 0 || a.NamedTotal()+a.UnknownThreads != a.ThreadCount {
		return fmt.Errorf("%w: month %s has %d named + %d unknown for %d threads",
			ErrInconsistentAggregate, a.Month, a.NamedTotal(), a.UnknownThreads, a.ThreadCount)
	}
	return nil
}

type aggregateWire struct {
	Month                      string             `json:"month"`
	ThreadCount                int                `json:"thread_count"`
	HappyThreads               int                `json:"happy_threads"`
	BitIrritatedThreads        int                `json:"bit_irritated_threads"`
	ModeratelyConcernedThreads int                `json:"moderately_concerned_threads"`
	AngerThreads               int                `json:"anger_threads"`
	FrustratedThreads          int                `json:"frustrated_threads"`
	UnknownThreads             int                `json:"unknown_threads"`
	Taxonomy                   sentiment.Taxonomy `json:"taxonomy"`
	Percentages                map[string]float64 `json:"percentages"`
}

// MarshalJSON emits the flat five-class shape consumed by dashboards.
func (a MonthlyAggregate) MarshalJSON() ([]byte, error) {
	taxonomy := a.Taxonomy
	if taxonomy == "" {
		taxonomy = sentiment.Emotion5
	}
	pct := make(map[string]float64, 6)
	for _, s := range append(sentiment.Canonical(), sentiment.Unknown) {
		pct[s.String()] = a.Percent(s)
	}
	return json.Marshal(aggregateWire{
		Month:                      a.Month,
		ThreadCount:                a.ThreadCount,
		HappyThreads:               a.Counts[sentiment.Happy],
		BitIrritatedThreads:        a.Counts[sentiment.BitIrritated],
		ModeratelyConcernedThreads: a.Counts[sentiment.ModeratelyConcerned],
		AngerThreads:               a.Counts[sentiment.Anger],
		FrustratedThreads:          a.Counts[sentiment.Frustrated],
		UnknownThreads:             a.UnknownThreads,
		Taxonomy:                   taxonomy,
		Percentages:                pct,
	})
}

type aggregatePayload struct {
	Month       string             `json:"month"`
	ThreadCount *int               `json:"thread_count"`
	Taxonomy    sentiment.Taxonomy `json:"taxonomy"`

	Happy               *int `json:"happy_threads"`
	BitIrritated        *int `json:"bit_irritated_threads"`
	ModeratelyConcerned *int `json:"moderately_concerned_threads"`
	Anger               *int `json:"anger_threads"`
	Frustrated          *int `json:"frustrated_threads"`
	Unknown             *int `json:"unknown_threads"`

	Pos     *int `json:"pos_threads"`
	Neutral *int `json:"neutral_threads"`
	Neg     *int `json:"neg_threads"`
}

// UnmarshalJSON accepts either the legacy pos/neutral/neg payload or the
// five-class payload and detects which one it was given. Legacy counts are
// mapped onto the canonical levels and the result is tagged Legacy3.
func (a *MonthlyAggregate) UnmarshalJSON(data []byte) error {
	var p aggregatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	legacy := p.Pos != nil || p.Neutral != nil || p.Neg != nil
	emotion := p.Happy != nil || p.BitIrritated != nil || p.ModeratelyConcerned != nil ||
		p.Anger != nil || p.Frustrated != nil

	out := NewMonthlyAggregate(p.Month)
	switch {
	case legacy && emotion:
		return fmt.Errorf("%w: month %s", ErrMixedTaxonomy, p.Month)
	case legacy:
		out.Taxonomy = sentiment.Legacy3
		out.Counts[sentiment.Normalize(sentiment.LabelPos)] = deref(p.Pos)
		out.Counts[sentiment.Normalize(sentiment.LabelNeutral)] = deref(p.Neutral)
		out.Counts[sentiment.Normalize(sentiment.LabelNeg)] = deref(p.Neg)
	case emotion:
		// Re-encoded legacy months keep their tag.
		if p.Taxonomy == sentiment.Legacy3 {
			out.Taxonomy = sentiment.Legacy3
		}
		out.Counts[sentiment.Happy] = deref(p.Happy)
		out.Counts[sentiment.BitIrritated] = deref(p.BitIrritated)
		out.Counts[sentiment.ModeratelyConcerned] = deref(p.ModeratelyConcerned)
		out.Counts[sentiment.Anger] = deref(p.Anger)
		out.Counts[sentiment.Frustrated] = deref(p.Frustrated)
	default:
		if deref(p.ThreadCount) != deref(p.Unknown) {
			return fmt.Errorf("%w: month %s", ErrMissingCounts, p.Month)
		}
	}

	named := out.NamedTotal()
	switch {
	case p.ThreadCount == nil:
		out.UnknownThreads = deref(p.Unknown)
		out.ThreadCount = named + out.UnknownThreads
	case p.Unknown == nil:
		out.ThreadCount = *p.ThreadCount
		out.UnknownThreads = out.ThreadCount - named
	default:
		out.ThreadCount = *p.ThreadCount
		out.UnknownThreads = *p.Unknown
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*a = out
	return nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

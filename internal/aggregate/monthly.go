// Package aggregate rolls reconciled threads into monthly sentiment buckets.
package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/threadlens/pkg/models"
)

// MonthLayout is the month key format ("2025-03").
const MonthLayout = "2006-01"

var ErrInvalidWindow = errors.New("aggregation window must be at least one month")

// Config controls aggregation. Now defaults to time.Now.
type Config struct {
	Now func() time.Time
}

// Aggregator is stateless and safe for concurrent use.
type Aggregator struct {
	now func() time.Time
}

// New creates an Aggregator.
func New(cfg Config) *Aggregator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{now: now}
}

// Aggregate buckets threads by the UTC calendar month of their last message.
// It returns exactly windowMonths entries, oldest first, ending at the current
// month. Months without threads are included with zero counts; threads outside
// the window are ignored.
func (a *Aggregator) Aggregate(threads []models.Thread, windowMonths int) ([]models.MonthlyAggregate, error) {
	if windowMonths <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, windowMonths)
	}

	months := Window(a.now(), windowMonths)
	result := make([]models.MonthlyAggregate, len(months))
	index := make(map[string]int, len(months))
	for i, m := range months {
		result[i] = models.NewMonthlyAggregate(m)
		index[m] = i
	}

	for _, t := range threads {
		i, ok := index[t.LastMessageTS.UTC().Format(MonthLayout)]
		if !ok {
			continue
		}
		result[i].Add(t.Sentiment)
	}

	return result, nil
}

// Since returns the first instant of the oldest month in the window.
func (a *Aggregator) Since(windowMonths int) time.Time {
	return monthStart(a.now()).AddDate(0, -(windowMonths - 1), 0)
}

// Window lists the month keys of the n calendar months ending at now's month, ascending.
func Window(now time.Time, n int) []string {
	if n <= 0 {
		return []string{}
	}
	start := monthStart(now)
	months := make([]string, n)
	for i := 0; i < n; i++ {
		months[n-1-i] = start.AddDate(0, -i, 0).Format(MonthLayout)
	}
	return months
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

package aggregate

import (
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func thread(id string, ts time.Time, s sentiment.Sentiment) models.Thread {
	return models.Thread{ThreadID: id, LastMessageTS: ts, Sentiment: s}
}

func TestAggregate_InvalidWindow(t *testing.T) {
	agg := New(Config{Now: fixedClock(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))})

	for _, n := range []int{0, -1, -24} {
		got, err := agg.Aggregate(nil, n)
		if !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("window %d: expected ErrInvalidWindow, got %v", n, err)
		}
		if got != nil {
			t.Errorf("window %d: expected nil result, got %v", n, got)
		}
	}
}

func TestAggregate_EmptyInputEmitsZeroMonths(t *testing.T) {
	agg := New(Config{Now: fixedClock(time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC))})

	got, err := agg.Aggregate([]models.Thread{}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"2024-12", "2025-01", "2025-02"}
	if len(got) != len(want) {
		t.Fatalf("expected %d months, got %d", len(want), len(got))
	}
	for i, m := range want {
		if got[i].Month != m {
			t.Errorf("month[%d] = %s, want %s", i, got[i].Month, m)
		}
		if got[i].ThreadCount != 0 {
			t.Errorf("month %s: expected 0 threads, got %d", m, got[i].ThreadCount)
		}
		for _, s := range sentiment.Canonical() {
			if got[i].Counts[s] != 0 {
				t.Errorf("month %s: expected zero %v, got %d", m, s, got[i].Counts[s])
			}
		}
	}
}

func TestAggregate_BucketsByUTCMonth(t *testing.T) {
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	agg := New(Config{Now: fixedClock(now)})

	// 23:30 on Feb 28 at UTC-5 is already March in UTC.
	est := time.FixedZone("EST", -5*3600)

	threads := []models.Thread{
		thread("a", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), sentiment.Happy),
		thread("b", time.Date(2025, 3, 19, 9, 0, 0, 0, time.UTC), sentiment.Happy),
		thread("c", time.Date(2025, 2, 28, 23, 30, 0, 0, est), sentiment.Anger),
		thread("d", time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC), sentiment.Frustrated),
		thread("e", time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC), sentiment.BitIrritated),
		thread("old", time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), sentiment.Frustrated),
	}

	got, err := agg.Aggregate(threads, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byMonth := map[string]models.MonthlyAggregate{}
	for _, m := range got {
		byMonth[m.Month] = m
	}

	mar := byMonth["2025-03"]
	if mar.ThreadCount != 3 || mar.Counts[sentiment.Happy] != 2 || mar.Counts[sentiment.Anger] != 1 {
		t.Errorf("unexpected March bucket: %+v", mar)
	}
	feb := byMonth["2025-02"]
	if feb.ThreadCount != 1 || feb.Counts[sentiment.Frustrated] != 1 {
		t.Errorf("unexpected February bucket: %+v", feb)
	}
	jan := byMonth["2025-01"]
	if jan.ThreadCount != 1 || jan.Counts[sentiment.BitIrritated] != 1 {
		t.Errorf("unexpected January bucket: %+v", jan)
	}
	if _, ok := byMonth["2024-12"]; ok {
		t.Error("threads outside the window must not create buckets")
	}
}

func TestAggregate_UnknownCountedSeparately(t *testing.T) {
	now := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	agg := New(Config{Now: fixedClock(now)})

	threads := []models.Thread{
		thread("a", now, sentiment.Happy),
		thread("b", now, sentiment.Unknown),
		thread("c", now, sentiment.Unknown),
		thread("d", now, sentiment.Frustrated),
	}

	got, err := agg.Aggregate(threads, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one month, got %d", len(got))
	}

	m := got[0]
	if m.ThreadCount != 4 {
		t.Errorf("expected thread_count 4, got %d", m.ThreadCount)
	}
	if m.UnknownThreads != 2 {
		t.Errorf("expected 2 unknown, got %d", m.UnknownThreads)
	}
	if m.NamedTotal() != 2 {
		t.Errorf("expected named total 2, got %d", m.NamedTotal())
	}
	if m.NamedTotal() > m.ThreadCount {
		t.Error("named counts must never exceed thread_count")
	}
	if err := m.Validate(); err != nil {
		t.Errorf("invariant violated: %v", err)
	}
	if m.Percent(sentiment.Unknown) != 50 {
		t.Errorf("expected 50%% unknown, got %v", m.Percent(sentiment.Unknown))
	}
}

func TestAggregate_InvariantHoldsForEveryMonth(t *testing.T) {
	now := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	agg := New(Config{Now: fixedClock(now)})

	levels := append(sentiment.Canonical(), sentiment.Unknown)
	var threads []models.Thread
	for i := 0; i < 120; i++ {
		ts := now.AddDate(0, 0, -i*3)
		threads = append(threads, thread("t", ts, levels[i%len(levels)]))
	}

	got, err := agg.Aggregate(threads, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := 0
	for _, m := range got {
		if err := m.Validate(); err != nil {
			t.Errorf("month %s: %v", m.Month, err)
		}
		total += m.ThreadCount
	}
	if total == 0 {
		t.Error("expected some threads inside the window")
	}
}

func TestAggregate_YearBoundaryAscending(t *testing.T) {
	agg := New(Config{Now: fixedClock(time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC))})

	got, err := agg.Aggregate(nil, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Month != "2024-12" || got[len(got)-1].Month != "2026-01" {
		t.Errorf("unexpected range %s..%s", got[0].Month, got[len(got)-1].Month)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Month >= got[i].Month {
			t.Errorf("months not ascending at %d: %s then %s", i, got[i-1].Month, got[i].Month)
		}
	}
}

func TestAggregate_DoesNotDependOnInputOrder(t *testing.T) {
	now := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	agg := New(Config{Now: fixedClock(now)})

	a := thread("a", now, sentiment.Anger)
	b := thread("b", now.AddDate(0, -1, 0), sentiment.Happy)

	first, _ := agg.Aggregate([]models.Thread{a, b}, 2)
	second, _ := agg.Aggregate([]models.Thread{b, a}, 2)

	for i := range first {
		if first[i].Month != second[i].Month || first[i].ThreadCount != second[i].ThreadCount {
			t.Errorf("order dependence at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSince(t *testing.T) {
	agg := New(Config{Now: fixedClock(time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC))})

	got := agg.Since(3)
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Since(3) = %v, want %v", got, want)
	}
}

func TestWindow(t *testing.T) {
	got := Window(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), 2)
	if len(got) != 2 || got[0] != "2025-02" || got[1] != "2025-03" {
		t.Errorf("unexpected window %v", got)
	}
	if len(Window(time.Now(), 0)) != 0 {
		t.Error("expected empty window for n=0")
	}
}

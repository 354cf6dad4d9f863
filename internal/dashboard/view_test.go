package dashboard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/threadlens/internal/aggregate"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

// fakeClient serves canned results. A call whose gate is set blocks until the
// gate is closed.
type fakeClient struct {
	mu          sync.Mutex
	threads     [][]models.Thread
	threadsErr  error
	threadGates []chan struct{}
	threadCalls int

	aggs      []models.MonthlyAggregate
	aggsErr   error
	aggsCalls int
}

func (f *fakeClient) Threads(ctx context.Context, limit int) ([]models.Thread, error) {
	f.mu.Lock()
	call := f.threadCalls
	f.threadCalls++
	var gate chan struct{}
	if call < len(f.threadGates) {
		gate = f.threadGates[call]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.threadsErr != nil {
		return nil, f.threadsErr
	}
	if call < len(f.threads) {
		return f.threads[call], nil
	}
	return []models.Thread{}, nil
}

func (f *fakeClient) MonthlyAggregates(ctx context.Context, months int) ([]models.MonthlyAggregate, error) {
	f.mu.Lock()
	f.aggsCalls++
	f.mu.Unlock()
	if f.aggsErr != nil {
		return nil, f.aggsErr
	}
	return f.aggs, nil
}

func thread(id string, s sentiment.Sentiment) models.Thread {
	return models.Thread{
		ThreadID:      id,
		LastMessageTS: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		MessageCount:  3,
		Status:        models.StatusOpen,
		StatusSource:  models.SourceHeuristic,
		Sentiment:     s,
	}
}

func month(name string, labels ...sentiment.Sentiment) models.MonthlyAggregate {
	m := models.NewMonthlyAggregate(name)
	for _, s := range labels {
		m.Add(s)
	}
	return m
}

func TestView_LoadThreads(t *testing.T) {
	client := &fakeClient{threads: [][]models.Thread{{thread("t-1", sentiment.Happy)}}}
	v := NewView(client)

	if err := v.LoadThreads(context.Background(), 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := v.Snapshot()
	if len(snap.Threads.Threads) != 1 || snap.Threads.Threads[0].ThreadID != "t-1" {
		t.Errorf("unexpected threads: %+v", snap.Threads.Threads)
	}
	if snap.Threads.Limit != 20 {
		t.Errorf("expected limit 20, got %d", snap.Threads.Limit)
	}
	if snap.Threads.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestView_FailedLoadKeepsPreviousData(t *testing.T) {
	client := &fakeClient{threads: [][]models.Thread{{thread("t-1", sentiment.Anger)}}}
	v := NewView(client)

	if err := v.LoadThreads(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.threadsErr = ErrUpstreamUnreachable
	err := v.LoadThreads(context.Background(), 10)
	if !errors.Is(err, ErrUpstreamFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	snap := v.Snapshot()
	if !errors.Is(snap.Threads.Err, ErrUpstreamUnreachable) {
		t.Errorf("expected panel error to be recorded, got %v", snap.Threads.Err)
	}
	if len(snap.Threads.Threads) != 1 {
		t.Errorf("expected previous data to survive, got %+v", snap.Threads.Threads)
	}

	client.threadsErr = nil
	if err := v.LoadThreads(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Snapshot().Threads.Err != nil {
		t.Error("successful load should clear the panel error")
	}
}

func TestView_StaleResponseDiscarded(t *testing.T) {
	slow := make(chan struct{})
	client := &fakeClient{
		threads: [][]models.Thread{
			{thread("stale", sentiment.Frustrated)},
			{thread("fresh", sentiment.Happy)},
		},
		threadGates: []chan struct{}{slow, nil},
	}
	v := NewView(client)

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- v.LoadThreads(context.Background(), 5)
	}()

	// Wait until the first request is in flight before issuing the second.
	deadline := time.Now().Add(2 * time.Second)
	for {
		client.mu.Lock()
		calls := client.threadCalls
		client.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first request never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := v.LoadThreads(context.Background(), 5); err != nil {
		t.Fatalf("unexpected error on second load: %v", err)
	}

	close(slow)
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the older request, got %v", err)
	}

	snap := v.Snapshot()
	if len(snap.Threads.Threads) != 1 || snap.Threads.Threads[0].ThreadID != "fresh" {
		t.Errorf("expected the newer response to win, got %+v", snap.Threads.Threads)
	}
}

func TestView_LoadAggregatesRejectsBadWindow(t *testing.T) {
	for _, months := range []int{0, -1, 25} {
		client := &fakeClient{}
		v := NewView(client)

		err := v.LoadAggregates(context.Background(), months)
		if !errors.Is(err, aggregate.ErrInvalidWindow) {
			t.Errorf("months=%d: expected ErrInvalidWindow, got %v", months, err)
		}
		if client.aggsCalls != 0 {
			t.Errorf("months=%d: expected no request, got %d", months, client.aggsCalls)
		}
	}
}

func TestView_RefreshPanelsAreIndependent(t *testing.T) {
	client := &fakeClient{
		threads: [][]models.Thread{{thread("t-1", sentiment.Happy)}},
		aggsErr: ErrUpstreamTimeout,
	}
	v := NewView(client)

	err := v.Refresh(context.Background(), 10, 6)
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected aggregates error, got %v", err)
	}

	snap := v.Snapshot()
	if len(snap.Threads.Threads) != 1 || snap.Threads.Err != nil {
		t.Errorf("thread panel should load despite aggregates failure: %+v", snap.Threads)
	}
	if !errors.Is(snap.Aggregates.Err, ErrUpstreamTimeout) {
		t.Errorf("expected aggregates panel error, got %v", snap.Aggregates.Err)
	}
}

func TestView_SnapshotIsACopy(t *testing.T) {
	client := &fakeClient{
		threads: [][]models.Thread{{thread("t-1", sentiment.Happy)}},
		aggs:    []models.MonthlyAggregate{month("2025-03", sentiment.Happy)},
	}
	v := NewView(client)
	if err := v.Refresh(context.Background(), 10, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := v.Snapshot()
	snap.Threads.Threads[0].ThreadID = "mutated"
	snap.Aggregates.Months[0].Month = "1999-01"

	again := v.Snapshot()
	if again.Threads.Threads[0].ThreadID != "t-1" {
		t.Error("mutating a snapshot changed view state")
	}
	if again.Aggregates.Months[0].Month != "2025-03" {
		t.Error("mutating a snapshot changed aggregate state")
	}
}

func TestRenderThreads(t *testing.T) {
	owner := models.OwnerCustomer
	th := thread("t-42", sentiment.BitIrritated)
	th.NextActionOwner = &owner

	var buf bytes.Buffer
	if err := RenderThreads(&buf, ThreadsPanel{Threads: []models.Thread{th}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"THREAD", "t-42", "open", "customer", "Bit Irritated", "2025-03-01T12:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderThreads_ErrorAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderThreads(&buf, ThreadsPanel{Err: ErrUpstreamUnreachable}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "unreachable") || !strings.Contains(out, "No threads.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRenderAggregates(t *testing.T) {
	legacy := month("2025-01", sentiment.Happy, sentiment.Frustrated)
	legacy.Taxonomy = sentiment.Legacy3
	current := month("2025-02", sentiment.Happy, sentiment.Happy, sentiment.Anger, sentiment.Unknown)

	var buf bytes.Buffer
	err := RenderAggregates(&buf, AggregatesPanel{Months: []models.MonthlyAggregate{legacy, current}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"MODERATELY CONCERNED", "UNKNOWN", "2025-01*", "2 (50.0%)", "1 (25.0%)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

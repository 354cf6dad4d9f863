package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/threadlens/internal/aggregate"
	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ErrSuperseded is returned by a load whose response arrived after a newer
// load for the same panel was issued. Its result is discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// ThreadsPanel is the state of the thread list.
type ThreadsPanel struct {
	Threads   []models.Thread
	Limit     int
	Err       error
	UpdatedAt time.Time
}

// AggregatesPanel is the state of the monthly sentiment chart.
type AggregatesPanel struct {
	Months    []models.MonthlyAggregate
	Window    int
	Err       error
	UpdatedAt time.Time
}

// Snapshot is a point-in-time copy of both panels.
type Snapshot struct {
	Threads    ThreadsPanel
	Aggregates AggregatesPanel
}

// View holds the latest data for each panel. Panels load independently; a
// failure in one leaves the other untouched, and a failed load keeps the
// last good data alongside the error.
type View struct {
	client Client
	now    func() time.Time

	mu            sync.Mutex
	threadsGen    uint64
	aggregatesGen uint64
	state         Snapshot
}

func NewView(client Client) *View {
	return &View{client: client, now: time.Now}
}

// LoadThreads fetches the thread list. Returns ErrSuperseded when a newer
// LoadThreads call was issued while this one was in flight.
func (v *View) LoadThreads(ctx context.Context, limit int) error {
	v.mu.Lock()
	v.threadsGen++
	gen := v.threadsGen
	v.mu.Unlock()

	threads, err := v.client.Threads(ctx, limit)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.threadsGen {
		return ErrSuperseded
	}

	v.state.Threads.Limit = limit
	v.state.Threads.Err = err
	if err != nil {
		return err
	}
	v.state.Threads.Threads = threads
	v.state.Threads.UpdatedAt = v.now()
	return nil
}

// LoadAggregates fetches months of rollups. A window outside
// 1..config.MaxAggregateMonths is rejected without a request.
func (v *View) LoadAggregates(ctx context.Context, months int) error {
	if months < 1 || months > config.MaxAggregateMonths {
		return fmt.Errorf("%w: got %d", aggregate.ErrInvalidWindow, months)
	}

	v.mu.Lock()
	v.aggregatesGen++
	gen := v.aggregatesGen
	v.mu.Unlock()

	aggs, err := v.client.MonthlyAggregates(ctx, months)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.aggregatesGen {
		return ErrSuperseded
	}

	v.state.Aggregates.Window = months
	v.state.Aggregates.Err = err
	if err != nil {
		return err
	}
	v.state.Aggregates.Months = aggs
	v.state.Aggregates.UpdatedAt = v.now()
	return nil
}

// Refresh loads both panels concurrently. One panel failing does not stop
// the other; the first error is returned once both are done.
func (v *View) Refresh(ctx context.Context, limit, months int) error {
	var g errgroup.Group
	g.Go(func() error {
		return ignoreSuperseded(v.LoadThreads(ctx, limit))
	})
	g.Go(func() error {
		return ignoreSuperseded(v.LoadAggregates(ctx, months))
	})
	return g.Wait()
}

func ignoreSuperseded(err error) error {
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.state
	s.Threads.Threads = append([]models.Thread(nil), v.state.Threads.Threads...)
	s.Aggregates.Months = append([]models.MonthlyAggregate(nil), v.state.Aggregates.Months...)
	return s
}

package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/robfig/cron/v3"
)

// Trigger starts an explain run.
type Trigger interface {
	TriggerExplain(ctx context.Context) (*models.Job, error)
}

// Scheduler fires a Trigger on a cron schedule until its context ends.
type Scheduler struct {
	schedule cron.Schedule
	trigger  Trigger
}

func NewScheduler(schedule cron.Schedule, trigger Trigger) *Scheduler {
	return &Scheduler{schedule: schedule, trigger: trigger}
}

// Run blocks until ctx is cancelled. A tick that finds a run still in
// progress is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now()
		next := s.schedule.Next(now)
		if next.IsZero() {
			slog.Warn("explain schedule has no future activations")
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		job, err := s.trigger.TriggerExplain(ctx)
		switch {
		case errors.Is(err, ErrExplainInProgress):
			slog.Info("scheduled explain skipped, previous run still active")
		case err != nil:
			slog.Error("scheduled explain failed to start", "error", err)
		default:
			slog.Info("scheduled explain started", "job_id", job.ID)
		}
	}
}

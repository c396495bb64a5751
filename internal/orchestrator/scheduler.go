package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/gnan1985/You-Only-Do-Once/internal/observability"
)

const DefaultPollInterval = 30 * time.Second

// Scheduler executes stored workflows whose schedules are due
type Scheduler struct {
	Orchestrator *Orchestrator
	Events       *observability.Logger
	Interval     time.Duration
	Now          func() time.Time
}

func NewScheduler(
	o *Orchestrator, events *observability.Logger, interval time.Duration,
) *Scheduler {
	if events == nil {
		events = observability.Discard()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		Orchestrator: o,
		Events:       events,
		Interval:     interval,
		Now:          time.Now,
	}
}

// Start polls until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Events.Slog().InfoContext(ctx, "scheduler started",
		slog.Duration("interval", s.Interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick executes every due schedule once and returns the runs it started.
// A schedule is marked as run before its workflow starts, so a slow or
// failing run never fires twice.
func (s *Scheduler) Tick(ctx context.Context) []*Run {
	now := s.Now().UTC()
	s.Orchestrator.status.Heartbeat()
	s.Events.LogHeartbeat(ctx)

	st := s.Orchestrator.store
	due, err := st.DueSchedules(ctx, now)
	if err != nil {
		s.Events.Slog().ErrorContext(ctx, "failed to poll schedules",
			observability.Error(err))
		return nil
	}

	var runs []*Run
	for _, sc := range due {
		if err := st.MarkScheduleRun(ctx, sc.ID, now); err != nil {
			s.Events.Slog().ErrorContext(ctx, "failed to update schedule",
				observability.WorkflowID(sc.WorkflowID), observability.Error(err))
			continue
		}
		sc.LastRun = now
		s.Events.LogSchedule(ctx, sc.WorkflowID, sc.ID, sc.Next())

		run, err := s.Orchestrator.Execute(ctx, sc.WorkflowID, ModeNormal)
		if err != nil {
			s.Events.Slog().WarnContext(ctx, "scheduled run failed to start",
				observability.WorkflowID(sc.WorkflowID), observability.Error(err))
			continue
		}
		runs = append(runs, run)
	}
	return runs
}

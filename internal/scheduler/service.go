// Package scheduler fires due recurring schedules into the job queue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
	"github.com/sendloop-systems/sendloop/internal/outbound"
	"github.com/sendloop-systems/sendloop/internal/queue"
	"github.com/sendloop-systems/sendloop/internal/store"
)

type Service struct {
	schedules store.ScheduleStore
	jobs      queue.Queue
}

func NewService(schedules store.ScheduleStore, jobs queue.Queue) *Service {
	return &Service{schedules: schedules, jobs: jobs}
}

// DispatchDue enqueues one outbound job for every enabled schedule due at or
// before now, earliest-due first, and advances each schedule by its interval.
// The job key is derived from the firing instant, so re-running against the
// same due set before the advance commits cannot double-enqueue. The advance
// adds the interval to the stored next-run time rather than recomputing from
// now: no drift accumulates across idle periods, at the cost of catching up a
// single increment per cycle. Returns the number of schedules fired.
func (s *Service) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.schedules.ListDueSchedules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due schedules: %w", err)
	}

	fired := 0
	for _, schedule := range due {
		cmd := outbound.SendCommand{
			IdempotencyKey: FiringKey(schedule),
			ContactID:      schedule.ContactID,
			Body:           schedule.MessageText,
			TemplateName:   schedule.TemplateName,
		}
		if err := s.jobs.Enqueue(ctx, queue.JobOutboundSendText, cmd); err != nil {
			return fired, fmt.Errorf("enqueue schedule %s: %w", schedule.ID, err)
		}

		next := schedule.NextRunAt.Add(time.Duration(schedule.IntervalMinutes) * time.Minute)
		if err := s.schedules.AdvanceSchedule(ctx, schedule.ID, next); err != nil {
			return fired, fmt.Errorf("advance schedule %s: %w", schedule.ID, err)
		}
		fired++
	}
	return fired, nil
}

// FiringKey is the idempotency key for one firing instant of a schedule.
func FiringKey(schedule models.Schedule) string {
	return fmt.Sprintf("schedule:%s:%d", schedule.ID, schedule.NextRunAt.Unix())
}

// Run enqueues a scheduler.dispatch_due job every interval until ctx is
// canceled. The worker loop executes the dispatch itself, so a single worker
// serializes schedule advancement with the rest of the pipeline.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.jobs.Enqueue(ctx, queue.JobSchedulerDispatchDue, struct{}{}); err != nil {
				slog.Error("failed to enqueue schedule dispatch", "error", err)
			}
		}
	}
}

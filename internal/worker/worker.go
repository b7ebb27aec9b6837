// Package worker consumes jobs from the queue and routes them to the
// processing services.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendloop-systems/sendloop/internal/inbound"
	"github.com/sendloop-systems/sendloop/internal/models"
	"github.com/sendloop-systems/sendloop/internal/outbound"
	"github.com/sendloop-systems/sendloop/internal/queue"
	"github.com/sendloop-systems/sendloop/internal/scheduler"
)

type Worker struct {
	jobs        queue.Queue
	inbound     *inbound.Service
	outbound    *outbound.Service
	scheduler   *scheduler.Service
	pollTimeout time.Duration
}

func New(jobs queue.Queue, in *inbound.Service, out *outbound.Service, sched *scheduler.Service, pollTimeout time.Duration) *Worker {
	if pollTimeout <= 0 {
		pollTimeout = 2 * time.Second
	}
	return &Worker{
		jobs:        jobs,
		inbound:     in,
		outbound:    out,
		scheduler:   sched,
		pollTimeout: pollTimeout,
	}
}

// Run pulls jobs one at a time until ctx is canceled. Each dequeue blocks for
// at most the poll timeout, so shutdown is observed promptly; an in-flight
// job runs to completion.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.jobs.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			slog.Error("failed to dequeue job", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		if err := w.handle(ctx, job); err != nil {
			slog.Error("job failed", "job_type", job.Type, "error", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobInboundProcessMessage:
		var msg models.InboundMessage
		if err := json.Unmarshal(job.Payload, &msg); err != nil {
			return fmt.Errorf("decode inbound payload: %w", err)
		}
		replied, err := w.inbound.Process(ctx, msg)
		if err != nil {
			return err
		}
		slog.Info("processed inbound message", "message_id", msg.MessageID, "replied", replied)
		return nil

	case queue.JobOutboundSendText:
		var cmd outbound.SendCommand
		if err := json.Unmarshal(job.Payload, &cmd); err != nil {
			return fmt.Errorf("decode outbound payload: %w", err)
		}
		attempted, err := w.outbound.Dispatch(ctx, cmd)
		if err != nil {
			return err
		}
		slog.Info("dispatched outbound send", "idempotency_key", cmd.IdempotencyKey, "attempted", attempted)
		return nil

	case queue.JobSchedulerDispatchDue:
		fired, err := w.scheduler.DispatchDue(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if fired > 0 {
			slog.Info("dispatched due schedules", "fired", fired)
		}
		return nil

	default:
		// No versioning on the job envelope; dropping is the safe default.
		slog.Warn("dropping job with unknown type", "job_type", job.Type)
		return nil
	}
}

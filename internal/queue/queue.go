// Package queue provides the job queue decoupling webhook and scheduler
// producers from the worker loop.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job type tags carried on the wire envelope.
const (
	JobInboundProcessMessage = "inbound.process_message"
	JobOutboundSendText      = "outbound.send_text"
	JobSchedulerDispatchDue  = "scheduler.dispatch_due"
)

// Job is the wire envelope for one queued unit of work.
type Job struct {
	Type    string          `json:"job_type"`
	Payload json.RawMessage `json:"payload"`
}

// Queue is the capability shared by all backends. Dequeue blocks for at most
// timeout and returns (nil, nil) when no job arrived, so a consumer can
// observe shutdown between polls.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
}

func newJob(jobType string, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Job{Type: jobType, Payload: raw}, nil
}

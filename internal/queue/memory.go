package queue

import (
	"context"
	"time"
)

const defaultMemoryQueueCapacity = 1024

// MemoryQueue is the in-process backend used in tests and as a fallback when
// no broker is configured. A buffered channel gives the same
// FIFO-with-mutual-exclusion guarantee as the Redis list.
type MemoryQueue struct {
	jobs chan *Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(chan *Job, defaultMemoryQueueCapacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobType string, payload any) error {
	job, err := newJob(jobType, payload)
	if err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of queued jobs. Test helper.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

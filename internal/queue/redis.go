package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a durable FIFO backed by a Redis list. Producers LPUSH and
// the consumer BRPOP, so delivery order matches enqueue order.
type RedisQueue struct {
	client *redis.Client
	name   string
}

func NewRedisQueue(redisURL, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisQueue{client: client, name: name}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload any) error {
	job, err := newJob(jobType, payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("lpush job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("brpop job: %w", err)
	}
	// BRPOP returns [key, value].
	job := &Job{}
	if err := json.Unmarshal([]byte(res[1]), job); err != nil {
		return nil, fmt.Errorf("unmarshal job envelope: %w", err)
	}
	return job, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultMaxRetry bounds asynq retries for a digitize task
const DefaultMaxRetry = 3

// Enqueuer submits digitize tasks to Redis
type Enqueuer struct {
	client *asynq.Client
	queue  string
}

// NewEnqueuer creates an enqueuer for queueName on the Redis at redisURL
func NewEnqueuer(redisURL, queueName string) (*Enqueuer, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Enqueuer{client: asynq.NewClient(redisOpt), queue: queueName}, nil
}

// Enqueue submits p and returns its job ID. The job ID doubles as the asynq
// task ID, so resubmitting a pending job is rejected.
func (e *Enqueuer) Enqueue(ctx context.Context, p *Payload) (string, error) {
	task, err := NewDigitizeTask(p)
	if err != nil {
		return "", err
	}

	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(e.queue),
		asynq.TaskID(p.JobID),
		asynq.MaxRetry(DefaultMaxRetry),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", p.JobID, err)
	}
	return info.ID, nil
}

// Close releases the Redis connection
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

/**
 * Redis job-status mirror
 *
 * Keeps the queue's operational view of each job in Redis:
 * - <queue>:processing, <queue>:completed, <queue>:failed sets
 * - <queue>:results and <queue>:errors hashes keyed by job ID
 * - <queue>:events pub/sub channel, including spellcheck progress
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/belfastkeyboard/TARA/internal/storage"
)

// Event is published on the events channel for every status change
type Event struct {
	Event     string `json:"event"`
	JobID     string `json:"jobId"`
	Timestamp string `json:"timestamp"`
	Done      int    `json:"done,omitempty"`
	Total     int    `json:"total,omitempty"`
}

// StatusTracker mirrors job status into Redis
type StatusTracker struct {
	client redis.UniversalClient
	queue  string
}

// NewStatusTracker connects to the Redis at redisURL
func NewStatusTracker(ctx context.Context, redisURL, queueName string) (*StatusTracker, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStatusTrackerWith(client, queueName), nil
}

// NewStatusTrackerWith wraps an existing client
func NewStatusTrackerWith(client redis.UniversalClient, queueName string) *StatusTracker {
	return &StatusTracker{client: client, queue: queueName}
}

func (t *StatusTracker) key(suffix string) string {
	return t.queue + ":" + suffix
}

// EventsChannel is the pub/sub channel status events are published on
func (t *StatusTracker) EventsChannel() string {
	return t.key("events")
}

// MarkProcessing records that jobID has started
func (t *StatusTracker) MarkProcessing(ctx context.Context, jobID string) error {
	if err := t.client.SAdd(ctx, t.key(storage.StatusProcessing), jobID).Err(); err != nil {
		return fmt.Errorf("failed to mark job %s processing: %w", jobID, err)
	}
	return t.publish(ctx, Event{Event: "job:" + storage.StatusProcessing, JobID: jobID})
}

// MarkCompleted moves jobID to the completed set and stores its result
func (t *StatusTracker) MarkCompleted(ctx context.Context, jobID string, result map[string]interface{}) error {
	return t.finish(ctx, jobID, storage.StatusCompleted, "results", result)
}

// MarkFailed moves jobID to the failed set and stores its error details
func (t *StatusTracker) MarkFailed(ctx context.Context, jobID string, details map[string]interface{}) error {
	return t.finish(ctx, jobID, storage.StatusFailed, "errors", details)
}

func (t *StatusTracker) finish(ctx context.Context, jobID, status, hash string, data map[string]interface{}) error {
	pipe := t.client.TxPipeline()
	pipe.SRem(ctx, t.key(storage.StatusProcessing), jobID)
	pipe.SAdd(ctx, t.key(status), jobID)
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal %s for job %s: %w", hash, jobID, err)
		}
		pipe.HSet(ctx, t.key(hash), jobID, encoded)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark job %s %s: %w", jobID, status, err)
	}
	return t.publish(ctx, Event{Event: "job:" + status, JobID: jobID})
}

// Progress publishes a spellcheck progress event
func (t *StatusTracker) Progress(ctx context.Context, jobID string, done, total int) error {
	return t.publish(ctx, Event{Event: "job:progress", JobID: jobID, Done: done, Total: total})
}

func (t *StatusTracker) publish(ctx context.Context, ev Event) error {
	ev.Timestamp = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, t.EventsChannel(), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Event, err)
	}
	return nil
}

// Result returns the stored result or error details of jobID
func (t *StatusTracker) Result(ctx context.Context, jobID string) (map[string]interface{}, error) {
	for _, hash := range []string{"results", "errors"} {
		raw, err := t.client.HGet(ctx, t.key(hash), jobID).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for job %s: %w", hash, jobID, err)
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("failed to decode %s for job %s: %w", hash, jobID, err)
		}
		return out, nil
	}
	return nil, storage.ErrNotFound
}

// Stats returns the size of each status set
func (t *StatusTracker) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	for _, status := range []string{storage.StatusProcessing, storage.StatusCompleted, storage.StatusFailed} {
		n, err := t.client.SCard(ctx, t.key(status)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", status, err)
		}
		stats[status] = n
	}
	return stats, nil
}

// Close closes the Redis client
func (t *StatusTracker) Close() error {
	return t.client.Close()
}

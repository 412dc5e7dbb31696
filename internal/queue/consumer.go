/**
 * Queue Consumer for the TARA digitization worker
 *
 * Consumes digitize tasks from Redis through asynq and hands each one to
 * the Handler. Retries back off exponentially; fatal entry-point errors are
 * marked SkipRetry by the handler.
 */

package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/belfastkeyboard/TARA/internal/logging"
)

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Handler     *Handler
	Logger      *logging.Logger
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	config *ConsumerConfig
	logger *logging.Logger
}

// RetryDelay is 5s doubled per attempt, capped at one minute
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if n > 4 {
		return 60 * time.Second
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing error",
					"type", task.Type(),
					"payload", string(task.Payload()),
					"error", err,
				)
			}),
			Logger: newAsynqLogger(logger),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeDigitize, cfg.Handler)

	return &Consumer{
		server: server,
		mux:    mux,
		config: cfg,
		logger: logger,
	}, nil
}

// Start begins processing in the background
func (c *Consumer) Start() error {
	c.logger.Info("starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName,
	)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for in-flight tasks and shuts the server down
func (c *Consumer) Stop() {
	c.logger.Info("stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("queue consumer stopped")
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// asynqLogger routes asynq's internal logging through the worker's slog handler
type asynqLogger struct {
	slog *slog.Logger
}

func newAsynqLogger(logger *logging.Logger) *asynqLogger {
	return &asynqLogger{slog: logger.Slog().With("source", "asynq")}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.slog.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.slog.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.slog.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.slog.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.slog.Error(fmt.Sprint(args...), "fatal", true)
	os.Exit(1)
}

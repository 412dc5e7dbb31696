/**
 * TARA Worker - Main Entry Point
 *
 * Consumes digitize jobs from the Redis queue and runs each one through the
 * pipeline: Segmenter → Layout Cropper → Extractor → Corrector.
 *
 * - asynq consumer for the Redis-backed job queue
 * - Redis status mirror with per-job progress events
 * - optional SQLite/PostgreSQL persistence for jobs and documents
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/belfastkeyboard/TARA/internal/config"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/pipeline"
	"github.com/belfastkeyboard/TARA/internal/queue"
	"github.com/belfastkeyboard/TARA/internal/storage"
)

func main() {
	logger := logging.NewLogger("worker")

	if err := godotenv.Load(); err != nil {
		logger.Info(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("invalid log level, using info", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("TARA worker starting",
		"redis", cfg.RedisURL,
		"queue", cfg.QueueName,
		"database", cfg.DatabaseDriver,
		"workers", cfg.WorkerConcurrency,
	)

	var docs pipeline.DocumentStore
	var jobs queue.JobRecorder
	if cfg.DatabaseURL != "" {
		store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		docs, jobs = store, store
		logger.Info("storage initialized", "driver", cfg.DatabaseDriver)
	}

	proc, err := pipeline.Build(cfg, docs, logging.NewLogger("pipeline"))
	if err != nil {
		return err
	}
	if !proc.CorrectionAvailable() {
		logger.Warn("WARNING: running without spellcheck", "dictionary_dir", cfg.DictionaryDir)
	}

	var tracker queue.Tracker
	statusTracker, err := queue.NewStatusTracker(ctx, cfg.RedisURL, cfg.QueueName)
	if err != nil {
		logger.Warn("WARNING: job status mirror disabled", "error", err)
	} else {
		defer statusTracker.Close()
		tracker = statusTracker
	}

	handler, err := queue.NewHandler(&queue.HandlerConfig{
		Runner:            proc,
		Jobs:              jobs,
		Tracker:           tracker,
		ProcessingTimeout: cfg.ProcessingTimeout,
		Logger:            logging.NewLogger("queue"),
	})
	if err != nil {
		return err
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		Handler:     handler,
		Logger:      logging.NewLogger("queue"),
	})
	if err != nil {
		return err
	}
	if err := consumer.Start(); err != nil {
		return err
	}

	stats := consumer.GetStatistics()
	logger.Info("TARA worker is ready, waiting for jobs",
		"queue", stats["queue"],
		"concurrency", stats["concurrency"],
		"spellcheck", proc.CorrectionAvailable(),
	)

	<-ctx.Done()
	logger.Info("received shutdown signal, stopping")
	consumer.Stop()
	return nil
}

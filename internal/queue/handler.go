package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/pipeline"
	"github.com/belfastkeyboard/TARA/internal/storage"
)

// DefaultProcessingTimeout bounds one job when no timeout is configured
const DefaultProcessingTimeout = 30 * time.Minute

// Runner executes a digitization request
type Runner interface {
	Process(ctx context.Context, req *pipeline.Request) (*pipeline.Result, error)
}

// JobRecorder persists job status
type JobRecorder interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// Tracker mirrors job status for queue clients
type Tracker interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, result map[string]interface{}) error
	MarkFailed(ctx context.Context, jobID string, details map[string]interface{}) error
	Progress(ctx context.Context, jobID string, done, total int) error
}

// HandlerConfig holds handler configuration. Jobs and Tracker are optional.
type HandlerConfig struct {
	Runner            Runner
	Jobs              JobRecorder
	Tracker           Tracker
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// Handler processes digitize tasks
type Handler struct {
	runner  Runner
	jobs    JobRecorder
	tracker Tracker
	timeout time.Duration
	logger  *logging.Logger
}

// NewHandler creates a task handler
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	if cfg == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("Runner is required")
	}

	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = DefaultProcessingTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	return &Handler{
		runner:  cfg.Runner,
		jobs:    cfg.Jobs,
		tracker: cfg.Tracker,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// skipRetry reports whether err can never succeed on a retry: fatal errors
// and inputs with nothing to process
func skipRetry(err error) bool {
	return taraerrors.IsFatal(err) || taraerrors.HasCode(err, taraerrors.ErrorEmptySet)
}

// ProcessTask implements asynq.Handler
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	payload, err := ParsePayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	req, err := payload.Request()
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	jobID := payload.JobID

	h.logger.Info(fmt.Sprintf("[Job %s] Processing digitize task", jobID),
		"path", payload.Path,
		"mode", req.Mode.String(),
	)

	h.updateStatus(ctx, &storage.JobUpdate{
		JobID:  jobID,
		Status: storage.StatusProcessing,
		Source: payload.Path,
		Mode:   req.Mode.String(),
	})
	if h.tracker != nil {
		if err := h.tracker.MarkProcessing(ctx, jobID); err != nil {
			h.logger.Warn(fmt.Sprintf("[Job %s] Warning: Failed to mirror processing status", jobID), "error", err)
		}
		req.Progress = func(done, total int) {
			if err := h.tracker.Progress(ctx, jobID, done, total); err != nil {
				h.logger.Debug("progress event dropped", "job_id", jobID, "error", err)
			}
		}
	}

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.runner.Process(processCtx, req)
	duration := time.Since(startTime)

	if err != nil {
		if stderrors.Is(processCtx.Err(), context.DeadlineExceeded) {
			h.logger.Warn(fmt.Sprintf("[Job %s] Processing timed out after %v", jobID, duration), "timeout", h.timeout)
			err = taraerrors.NewProcessingTimeoutError(jobID, h.timeout, err)
		}
		h.fail(ctx, jobID, err, duration)
		if skipRetry(err) {
			return fmt.Errorf("digitization failed: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("digitization failed: %w", err)
	}

	summary := map[string]interface{}{
		"outputs":        result.Outputs(),
		"pages":          result.Pages,
		"paragraphs":     result.Paragraphs,
		"failedEntries":  result.Failed,
		"processingTime": duration.Milliseconds(),
	}

	h.logger.Info(fmt.Sprintf("[Job %s] Processing completed in %v", jobID, duration),
		"outputs", len(result.Outputs()),
		"failed_entries", result.Failed,
	)

	h.updateStatus(ctx, &storage.JobUpdate{
		JobID:    jobID,
		Status:   storage.StatusCompleted,
		Metadata: summary,
	})
	if h.tracker != nil {
		if err := h.tracker.MarkCompleted(ctx, jobID, summary); err != nil {
			h.logger.Warn(fmt.Sprintf("[Job %s] Warning: Failed to mirror completed status", jobID), "error", err)
		}
	}
	return nil
}

func (h *Handler) fail(ctx context.Context, jobID string, err error, duration time.Duration) {
	details := map[string]interface{}{"error": err.Error()}
	var pe *taraerrors.ProcessingError
	if stderrors.As(err, &pe) {
		details = pe.ToMap()
	}
	details["processingTime"] = duration.Milliseconds()

	h.logger.Error(fmt.Sprintf("[Job %s] Processing failed after %v", jobID, duration),
		"code", taraerrors.CodeOf(err),
		"error", err,
	)

	h.updateStatus(ctx, &storage.JobUpdate{
		JobID:        jobID,
		Status:       storage.StatusFailed,
		ErrorCode:    string(taraerrors.CodeOf(err)),
		ErrorMessage: err.Error(),
	})
	if h.tracker != nil {
		if terr := h.tracker.MarkFailed(ctx, jobID, details); terr != nil {
			h.logger.Warn(fmt.Sprintf("[Job %s] Warning: Failed to mirror failed status", jobID), "error", terr)
		}
	}
}

func (h *Handler) updateStatus(ctx context.Context, update *storage.JobUpdate) {
	if h.jobs == nil {
		return
	}
	if err := h.jobs.UpdateJobStatus(ctx, update); err != nil {
		h.logger.Warn(fmt.Sprintf("[Job %s] Warning: Failed to update status to %s", update.JobID, update.Status),
			"error", err,
		)
	}
}

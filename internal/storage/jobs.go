package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
)

// Job statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID        string
	Status       string
	Source       string
	Mode         string
	ErrorCode    string
	ErrorMessage string
	Metadata     map[string]interface{}
}

// Job is a persisted job row
type Job struct {
	ID           string
	Status       string
	Source       string
	Mode         string
	ErrorCode    string
	ErrorMessage string
	Metadata     map[string]interface{}
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpdateJobStatus creates the job on its first update and updates it afterwards.
// Empty source, mode and metadata keep the stored values; error fields are
// replaced on every update.
func (s *Store) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadata := "{}"
	if len(update.Metadata) > 0 {
		data, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(data)
	}

	now := millis(time.Now())
	query := s.rebind(`
		INSERT INTO jobs (
			id, status, source, mode, error_code, error_message, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			source = CASE WHEN excluded.source = '' THEN jobs.source ELSE excluded.source END,
			mode = CASE WHEN excluded.mode = '' THEN jobs.mode ELSE excluded.mode END,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			metadata = CASE WHEN excluded.metadata = '{}' THEN jobs.metadata ELSE excluded.metadata END,
			updated_at = excluded.updated_at
	`)

	if _, err := s.db.ExecContext(ctx, query,
		update.JobID,
		update.Status,
		update.Source,
		update.Mode,
		update.ErrorCode,
		update.ErrorMessage,
		metadata,
		now,
		now,
	); err != nil {
		return taraerrors.NewStorageFailedError(update.JobID,
			fmt.Errorf("failed to update job status (status=%s): %w", update.Status, err))
	}
	return nil
}

// GetJob loads one job by id
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := s.rebind(`
		SELECT id, status, source, mode, error_code, error_message, metadata, created_at, updated_at
		FROM jobs
		WHERE id = ?
	`)

	var (
		job                  Job
		errorCode, errorMsg  sql.NullString
		metadataJSON         string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &job.Source, &job.Mode,
		&errorCode, &errorMsg, &metadataJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMsg.String
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)

	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &job, nil
}

package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the TARA digitization pipeline
 *
 * Entry-point codes (NOT_FOUND, TYPE_MISMATCH, TIMEOUT) abort one file's run.
 * Per-item codes (ENCODING_ERROR, EMPTY_SET, INDEX_CORRUPTION) are recovered
 * by the stage that raised them and surface only as warnings.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Entry-point errors
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorTypeMismatch ErrorCode = "TYPE_MISMATCH"
	ErrorTimeout      ErrorCode = "TIMEOUT"

	// Correction errors
	ErrorEncoding        ErrorCode = "ENCODING_ERROR"
	ErrorIndexCorruption ErrorCode = "INDEX_CORRUPTION"

	// Empty inputs: no dictionaries, no bounding boxes, empty directory
	ErrorEmptySet ErrorCode = "EMPTY_SET"

	// External boundaries
	ErrorOCRFailed     ErrorCode = "OCR_FAILED"
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	Path      string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first ProcessingError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether err's chain carries a ProcessingError with code
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsFatal reports whether err must abort the current top-level operation
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrorNotFound, ErrorTypeMismatch, ErrorTimeout:
		return true
	}
	return false
}

// Factory functions for common errors

func NewNotFoundError(path string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNotFound,
		Message:   fmt.Sprintf("File '%s' not found", path),
		Path:      path,
		Timestamp: time.Now(),
	}
}

func NewTypeMismatchError(path string, got string, accepted []string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTypeMismatch,
		Message:   fmt.Sprintf("Unexpected file type: '%s'", got),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"file_type": got,
			"accepted":  accepted,
		},
	}
}

func NewTimeoutError(path string, page int, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTimeout,
		Message:   fmt.Sprintf("Rasterizer timed out after %v on page %d", duration, page),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page":             page,
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

// NewProcessingTimeoutError reports a whole job exceeding its processing deadline
func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id":           jobID,
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewEncodingError(value string, offset int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEncoding,
		Message:   fmt.Sprintf("Undecodable byte sequence at offset %d", offset),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"offset": offset,
			"value":  fmt.Sprintf("%q", value),
		},
	}
}

func NewEmptySetError(what string, path string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEmptySet,
		Message:   fmt.Sprintf("No %s found", what),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"set": what,
		},
	}
}

func NewIndexCorruptionError(index int, limit int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorIndexCorruption,
		Message:   fmt.Sprintf("Restitch index %d exceeds limit %d", index, limit),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"index": index,
			"limit": limit,
		},
	}
}

func NewOCRFailedError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed for '%s'", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id": jobID,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Path != "" {
		result["path"] = e.Path
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

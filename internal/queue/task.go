package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/belfastkeyboard/TARA/internal/layout"
	"github.com/belfastkeyboard/TARA/internal/ocr"
	"github.com/belfastkeyboard/TARA/internal/pipeline"
)

// TaskTypeDigitize is the asynq task type for digitization jobs
const TaskTypeDigitize = "digitize:document"

// Payload is the JSON body of a digitize task
type Payload struct {
	JobID      string `json:"jobId"`
	Path       string `json:"path"`
	Mode       string `json:"mode,omitempty"`
	CropFlags  int    `json:"cropFlags"`
	ScanFlags  int    `json:"scanFlags"`
	Spellcheck bool   `json:"spellcheck"`
}

// DefaultPayload returns a payload for path with the pipeline's default options
func DefaultPayload(path string) *Payload {
	opts := pipeline.DefaultOptions()
	return &Payload{
		Path:       path,
		Mode:       pipeline.ModeAll.String(),
		CropFlags:  int(opts.CropFlags),
		ScanFlags:  int(opts.ScanFlags),
		Spellcheck: opts.Spellcheck,
	}
}

// Validate checks the payload and assigns a job ID when none was supplied
func (p *Payload) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	if _, err := pipeline.ParseMode(p.Mode); err != nil {
		return err
	}
	if p.JobID == "" {
		p.JobID = uuid.New().String()
	}
	return nil
}

// Request converts the payload into a pipeline request
func (p *Payload) Request() (*pipeline.Request, error) {
	mode, err := pipeline.ParseMode(p.Mode)
	if err != nil {
		return nil, err
	}
	return &pipeline.Request{
		JobID: p.JobID,
		Path:  p.Path,
		Mode:  mode,
		Options: pipeline.Options{
			CropFlags:  layout.Flags(p.CropFlags),
			ScanFlags:  ocr.Flags(p.ScanFlags),
			Spellcheck: p.Spellcheck,
		},
	}, nil
}

// NewDigitizeTask validates p and wraps it in an asynq task
func NewDigitizeTask(p *Payload) (*asynq.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDigitize, data), nil
}

// ParsePayload decodes and validates a task body
func ParsePayload(data []byte) (*Payload, error) {
	// fields missing from data keep their defaults
	p := DefaultPayload("")
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return p, nil
}

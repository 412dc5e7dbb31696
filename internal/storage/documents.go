package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
)

// Document records the outputs produced for one source file
type Document struct {
	ID               string
	JobID            string
	Source           string
	Kind             string
	TextPath         string
	SpellcheckedPath string
	PageCount        int
	ParagraphCount   int
	CreatedAt        time.Time
}

// SaveDocument inserts doc, assigning an ID and creation time when unset
func (s *Store) SaveDocument(ctx context.Context, doc *Document) error {
	if doc.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	query := s.rebind(`
		INSERT INTO documents (
			id, job_id, source, kind, text_path, spellchecked_path,
			page_count, paragraph_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	if _, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.JobID,
		doc.Source,
		doc.Kind,
		doc.TextPath,
		doc.SpellcheckedPath,
		doc.PageCount,
		doc.ParagraphCount,
		millis(doc.CreatedAt),
	); err != nil {
		return taraerrors.NewStorageFailedError(doc.JobID, fmt.Errorf("failed to save document: %w", err))
	}
	return nil
}

// ListDocuments returns the documents of a job in creation order
func (s *Store) ListDocuments(ctx context.Context, jobID string) ([]Document, error) {
	query := s.rebind(`
		SELECT id, job_id, source, kind, text_path, spellchecked_path,
			page_count, paragraph_count, created_at
		FROM documents
		WHERE job_id = ?
		ORDER BY created_at, source
	`)

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var createdAt int64
		if err := rows.Scan(
			&d.ID, &d.JobID, &d.Source, &d.Kind, &d.TextPath, &d.SpellcheckedPath,
			&d.PageCount, &d.ParagraphCount, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.CreatedAt = fromMillis(createdAt)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

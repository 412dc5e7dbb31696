/**
 * Extractor - sequential OCR over ordered page images
 *
 * Pages are recognized one at a time in index order. Any failure aborts the
 * batch and discards what was already read. Normalization runs afterwards in
 * a fixed order: split, hyphenation, newlines, punctuation spacing.
 */

package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/page"
)

// Flags selects the normalization steps
type Flags uint

const (
	NoFlags               Flags = 0
	SplitPage             Flags = 1 << 0
	FixHyphenation        Flags = 1 << 1
	FixNewlines           Flags = 1 << 2
	FixPunctuationSpacing Flags = 1 << 3
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// AllFlags enables every normalization step
const AllFlags = SplitPage | FixHyphenation | FixNewlines | FixPunctuationSpacing

var (
	spaceBeforeClose = regexp.MustCompile(`\b ([”;])`)
	spaceAfterOpen   = regexp.MustCompile(`“ \b`)
)

// ExtractorConfig holds extractor configuration
type ExtractorConfig struct {
	Engine Engine
	PSM    PageSegMode
	Logger *logging.Logger
}

// Extractor runs OCR over page images
type Extractor struct {
	engine Engine
	psm    PageSegMode
	logger *logging.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(cfg *ExtractorConfig) (*Extractor, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("OCR engine is required")
	}
	if !cfg.PSM.Valid() {
		return nil, fmt.Errorf("invalid page segmentation mode %d", cfg.PSM)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("ocr")
	}

	return &Extractor{
		engine: cfg.Engine,
		psm:    cfg.PSM,
		logger: logger,
	}, nil
}

// Scan recognizes each page in order and returns one raw text per page
func (e *Extractor) Scan(ctx context.Context, pages []page.Image) ([]string, error) {
	start := time.Now()
	texts := make([]string, 0, len(pages))

	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := p.Bytes()
		if err != nil {
			return nil, err
		}

		text, err := e.engine.Recognize(ctx, data, e.psm)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, taraerrors.NewOCRFailedError(p.Path, err)
		}
		texts = append(texts, text)

		e.logger.Debug("page scanned",
			"index", p.Index,
			"done", i+1,
			"total", len(pages),
		)
	}

	e.logger.Info("scan complete",
		"pages", len(pages),
		"elapsed", time.Since(start),
	)
	return texts, nil
}

// Extract scans pages and applies the normalization selected by flags
func (e *Extractor) Extract(ctx context.Context, pages []page.Image, flags Flags) ([]string, error) {
	texts, err := e.Scan(ctx, pages)
	if err != nil {
		return nil, err
	}
	return Normalize(texts, flags), nil
}

// Normalize applies the selected steps in their fixed order
func Normalize(texts []string, flags Flags) []string {
	out := append([]string(nil), texts...)

	if flags.Has(SplitPage) {
		var paragraphs []string
		for _, t := range out {
			paragraphs = append(paragraphs, strings.Split(t, "\n\n")...)
		}
		out = paragraphs
	}

	for i := range out {
		if flags.Has(FixHyphenation) {
			out[i] = strings.ReplaceAll(out[i], "-\n", "")
		}
		if flags.Has(FixNewlines) {
			out[i] = strings.ReplaceAll(out[i], "\n", " ")
		}
		if flags.Has(FixPunctuationSpacing) {
			out[i] = spaceBeforeClose.ReplaceAllString(out[i], "$1")
			out[i] = spaceAfterOpen.ReplaceAllString(out[i], "“")
		}
	}

	return out
}

// Separator is the join string for extracted text: paragraphs are separated
// by a blank line, whole pages by a single newline.
func Separator(flags Flags) string {
	if flags.Has(SplitPage) {
		return "\n\n"
	}
	return "\n"
}

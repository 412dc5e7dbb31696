/**
 * Digitization Processor
 *
 * Runs one input through the staged pipeline:
 * - Segmenter: PDF → ordered page images
 * - Layout Cropper: strip running headers and page numbers in place
 * - Extractor: OCR each page, then normalize the text
 * - Corrector: clause-level spelling correction
 *
 * Each stage consumes the complete output of the previous one. Directories
 * fan out to their entries; a failing entry does not stop the rest.
 */

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/layout"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/ocr"
	"github.com/belfastkeyboard/TARA/internal/page"
	"github.com/belfastkeyboard/TARA/internal/segment"
	"github.com/belfastkeyboard/TARA/internal/spellcheck"
	"github.com/belfastkeyboard/TARA/internal/storage"
)

// DocumentStore records produced documents
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *storage.Document) error
}

// Config holds processor configuration. Stages left nil are reported
// unavailable when an input needs them.
type Config struct {
	Segmenter *segment.Segmenter
	Cropper   *layout.Cropper
	Extractor *ocr.Extractor
	Corrector *spellcheck.Corrector
	Store     DocumentStore
	Logger    *logging.Logger
}

// Options are the per-request stage flags
type Options struct {
	CropFlags  layout.Flags
	ScanFlags  ocr.Flags
	Spellcheck bool
}

// DefaultOptions crops headers and page numbers, applies every text fix and corrects
func DefaultOptions() Options {
	return Options{
		CropFlags:  layout.CropRunningHeader | layout.CropPageNumber,
		ScanFlags:  ocr.AllFlags,
		Spellcheck: true,
	}
}

// Request represents a digitization request
type Request struct {
	JobID    string
	Path     string
	Mode     Mode
	Options  Options
	Progress func(done, total int)
}

// Result represents the outcome for one input
type Result struct {
	JobID            string
	Source           string
	Kind             InputKind
	TextPath         string
	SpellcheckedPath string
	Pages            int
	Paragraphs       int
	Entries          []*Result
	Failed           int
	ProcessingTime   time.Duration
}

// Outputs lists every file written for this result and its entries
func (r *Result) Outputs() []string {
	var out []string
	if r.TextPath != "" {
		out = append(out, r.TextPath)
	}
	if r.SpellcheckedPath != "" {
		out = append(out, r.SpellcheckedPath)
	}
	for _, e := range r.Entries {
		out = append(out, e.Outputs()...)
	}
	return out
}

// Processor handles digitization requests
type Processor struct {
	segmenter *segment.Segmenter
	cropper   *layout.Cropper
	extractor *ocr.Extractor
	corrector *spellcheck.Corrector
	store     DocumentStore
	logger    *logging.Logger
}

// NewProcessor creates a new processor
func NewProcessor(cfg *Config) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Extractor == nil && cfg.Corrector == nil {
		return nil, fmt.Errorf("an extractor or a corrector is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("pipeline")
	}

	return &Processor{
		segmenter: cfg.Segmenter,
		cropper:   cfg.Cropper,
		extractor: cfg.Extractor,
		corrector: cfg.Corrector,
		store:     cfg.Store,
		logger:    logger,
	}, nil
}

// CorrectionAvailable reports whether a dictionary set is loaded
func (p *Processor) CorrectionAvailable() bool {
	return p.corrector != nil
}

// Process runs req through the stages its input kind and mode call for
func (p *Processor) Process(ctx context.Context, req *Request) (*Result, error) {
	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}
	start := time.Now()

	p.logger.Info(fmt.Sprintf("[Job %s] Starting digitization", req.JobID),
		"path", req.Path,
		"mode", req.Mode.String(),
	)

	// Step 1: Resolve input kind
	kind, err := ResolveInput(req.Path)
	if err != nil {
		return nil, err
	}
	if !req.Mode.Accepts(kind) {
		return nil, taraerrors.NewTypeMismatchError(req.Path, kind.String(), acceptedKinds(req.Mode))
	}
	p.logger.Info(fmt.Sprintf("[Job %s] Step 1: Resolved input", req.JobID), "kind", kind.String())

	var res *Result
	switch kind {
	case KindDirectory:
		res, err = p.processDirectory(ctx, req)
	case KindPDF:
		res, err = p.processPDF(ctx, req)
	case KindImage:
		res, err = p.processImage(ctx, req)
	case KindText:
		res, err = p.processText(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	res.ProcessingTime = time.Since(start)
	p.logger.Info(fmt.Sprintf("[Job %s] Digitization complete", req.JobID),
		"path", req.Path,
		"outputs", len(res.Outputs()),
		"failed_entries", res.Failed,
		"elapsed", res.ProcessingTime,
	)
	return res, nil
}

func acceptedKinds(m Mode) []string {
	var kinds []string
	for _, k := range []InputKind{KindImage, KindPDF, KindText, KindDirectory} {
		if m.Accepts(k) {
			kinds = append(kinds, k.String())
		}
	}
	return kinds
}

func (p *Processor) processPDF(ctx context.Context, req *Request) (*Result, error) {
	if p.segmenter == nil {
		return nil, fmt.Errorf("pipeline has no segmenter configured")
	}

	// Step 2: Segment PDF into page images
	p.logger.Info(fmt.Sprintf("[Job %s] Step 2: Segmenting PDF", req.JobID), "path", req.Path)
	pages, err := p.segmenter.Segment(ctx, req.Path)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}

	return p.scan(ctx, req, KindPDF, pages)
}

func (p *Processor) processImage(ctx context.Context, req *Request) (*Result, error) {
	// Step 2: Copy the image into its working directory so cropping never touches the source
	imagesDir, err := segment.PrepareWorkDir(segment.WorkDir(req.Path))
	if err != nil {
		return nil, err
	}

	m, err := page.Decode(req.Path)
	if err != nil {
		return nil, err
	}
	dst := filepath.Join(imagesDir, page.FileName(1))
	if err := page.Save(dst, m); err != nil {
		return nil, fmt.Errorf("failed to copy image: %w", err)
	}
	p.logger.Info(fmt.Sprintf("[Job %s] Step 2: Copied image", req.JobID), "to", dst)

	return p.scan(ctx, req, KindImage, []page.Image{page.FromPath(dst)})
}

// scan runs crop, extract and correct over pages and writes the outputs next to the source
func (p *Processor) scan(ctx context.Context, req *Request, kind InputKind, pages []page.Image) (*Result, error) {
	if p.extractor == nil {
		return nil, fmt.Errorf("pipeline has no extractor configured")
	}
	opts := req.Options
	res := &Result{JobID: req.JobID, Source: req.Path, Kind: kind, Pages: len(pages)}

	// Step 3: Crop layout
	if opts.CropFlags != layout.NoFlags {
		if p.cropper == nil {
			return nil, fmt.Errorf("pipeline has no cropper configured")
		}
		p.logger.Info(fmt.Sprintf("[Job %s] Step 3: Cropping %d pages", req.JobID, len(pages)))
		if err := p.cropper.CropAll(ctx, pages, opts.CropFlags); err != nil {
			return nil, fmt.Errorf("cropping failed: %w", err)
		}
	}

	// Step 4: Extract text
	p.logger.Info(fmt.Sprintf("[Job %s] Step 4: Extracting text from %d pages", req.JobID, len(pages)))
	texts, err := p.extractor.Extract(ctx, pages, opts.ScanFlags)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	res.Paragraphs = len(texts)

	textPath, spellcheckedPath := OutputPaths(req.Path)
	sep := ocr.Separator(opts.ScanFlags)
	if err := writeText(textPath, texts, sep); err != nil {
		return nil, err
	}
	res.TextPath = textPath
	p.logger.Info(fmt.Sprintf("[Job %s] Text written", req.JobID), "path", textPath, "paragraphs", len(texts))

	// Step 5: Spellcheck
	if req.Mode != ModeScan && opts.Spellcheck {
		corrected, ok, err := p.correct(ctx, req, texts)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := writeText(spellcheckedPath, corrected, sep); err != nil {
				return nil, err
			}
			res.SpellcheckedPath = spellcheckedPath
		}
	}

	p.record(ctx, res)
	return res, nil
}

func (p *Processor) processText(ctx context.Context, req *Request) (*Result, error) {
	// ModeSpellcheck always corrects; ModeAll only when asked to
	if req.Mode == ModeAll && !req.Options.Spellcheck {
		p.logger.Info(fmt.Sprintf("[Job %s] Step 2: Spellcheck disabled, leaving text input as is", req.JobID),
			"path", req.Path,
		)
		return &Result{JobID: req.JobID, Source: req.Path, Kind: KindText}, nil
	}
	if p.corrector == nil {
		return nil, taraerrors.NewEmptySetError("dictionaries", req.Path)
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, taraerrors.NewNotFoundError(req.Path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", req.Path, err)
	}
	lines := strings.Split(string(data), "\n")

	// Step 2: Spellcheck line by line
	corrected, _, err := p.correct(ctx, req, lines)
	if err != nil {
		return nil, err
	}

	_, spellcheckedPath := OutputPaths(req.Path)
	if err := writeText(spellcheckedPath, corrected, "\n"); err != nil {
		return nil, err
	}

	res := &Result{
		JobID:            req.JobID,
		Source:           req.Path,
		Kind:             KindText,
		SpellcheckedPath: spellcheckedPath,
		Paragraphs:       len(lines),
	}
	p.record(ctx, res)
	return res, nil
}

// correct spellchecks paragraphs. ok is false when no dictionary set is loaded.
func (p *Processor) correct(ctx context.Context, req *Request, paragraphs []string) ([]string, bool, error) {
	if p.corrector == nil {
		p.logger.Warn(fmt.Sprintf("[Job %s] Spellcheck unavailable, no dictionaries loaded", req.JobID),
			"path", req.Path,
			"code", taraerrors.ErrorEmptySet,
		)
		return nil, false, nil
	}

	p.logger.Info(fmt.Sprintf("[Job %s] Step 5: Spellchecking %d paragraphs", req.JobID, len(paragraphs)))
	corrected, err := p.corrector.SpellcheckBatch(ctx, paragraphs, req.Progress)
	if err != nil {
		return nil, false, fmt.Errorf("spellcheck failed: %w", err)
	}
	return corrected, true, nil
}

func (p *Processor) processDirectory(ctx context.Context, req *Request) (*Result, error) {
	files, err := collectEntries(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", req.Path, err)
	}
	if len(files) == 0 {
		return nil, taraerrors.NewEmptySetError("files", req.Path)
	}

	p.logger.Info(fmt.Sprintf("[Job %s] Step 2: Processing %d directory entries", req.JobID, len(files)))
	res := &Result{JobID: req.JobID, Source: req.Path, Kind: KindDirectory}
	var lastErr error

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, err := p.Process(ctx, &Request{
			JobID:    req.JobID,
			Path:     path,
			Mode:     req.Mode,
			Options:  req.Options,
			Progress: req.Progress,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Failed++
			lastErr = err
			p.logger.Warn(fmt.Sprintf("[Job %s] Entry failed, continuing", req.JobID),
				"path", path,
				"code", taraerrors.CodeOf(err),
				"error", err,
			)
			continue
		}
		res.Entries = append(res.Entries, entry)
		res.Pages += entry.Pages
		res.Paragraphs += entry.Paragraphs
	}

	if res.Failed == len(files) {
		return nil, fmt.Errorf("all %d entries of %s failed: %w", len(files), req.Path, lastErr)
	}
	return res, nil
}

// record persists res when a store is configured. Failures are logged only.
func (p *Processor) record(ctx context.Context, res *Result) {
	if p.store == nil {
		return
	}
	doc := &storage.Document{
		JobID:            res.JobID,
		Source:           res.Source,
		Kind:             res.Kind.String(),
		TextPath:         res.TextPath,
		SpellcheckedPath: res.SpellcheckedPath,
		PageCount:        res.Pages,
		ParagraphCount:   res.Paragraphs,
	}
	if err := p.store.SaveDocument(ctx, doc); err != nil {
		p.logger.Warn(fmt.Sprintf("[Job %s] WARNING: Failed to record document", res.JobID),
			"path", res.Source,
			"error", err,
		)
	}
}

func writeText(path string, paragraphs []string, sep string) error {
	if err := os.WriteFile(path, []byte(strings.Join(paragraphs, sep)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

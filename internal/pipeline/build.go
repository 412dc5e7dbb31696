package pipeline

import (
	"fmt"

	"github.com/belfastkeyboard/TARA/internal/config"
	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/layout"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/ocr"
	"github.com/belfastkeyboard/TARA/internal/segment"
	"github.com/belfastkeyboard/TARA/internal/spellcheck"
)

// Build wires every stage from configuration. A missing or empty dictionary
// set leaves correction unavailable instead of failing.
func Build(cfg *config.Config, store DocumentStore, logger *logging.Logger) (*Processor, error) {
	if logger == nil {
		logger = logging.NewLogger("pipeline")
	}

	segmenter, err := segment.NewSegmenter(&segment.Config{
		Rasterizer: segment.NewPopplerRasterizer(cfg.PdftoppmPath, cfg.RasterDPI),
		Workers:    cfg.SegmentWorkers,
		Timeout:    cfg.RasterTimeout,
		Logger:     logging.NewLogger("segment"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}

	engine, err := ocr.NewTesseractEngine(&ocr.TesseractConfig{Languages: cfg.OCRLanguages})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR engine: %w", err)
	}

	cropper, err := layout.NewCropper(&layout.Config{
		Thresholds: layout.Thresholds(cfg.Layout),
		Reader:     ocr.NewRegionRecognizer(engine),
		Logger:     logging.NewLogger("layout"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cropper: %w", err)
	}

	extractor, err := ocr.NewExtractor(&ocr.ExtractorConfig{
		Engine: engine,
		PSM:    ocr.PageSegMode(cfg.OCRPSM),
		Logger: logging.NewLogger("ocr"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	corrector, err := spellcheck.NewCorrector(&spellcheck.CorrectorConfig{
		DictionaryDir:   cfg.DictionaryDir,
		MaxEditDistance: cfg.MaxEditDistance,
		Logger:          logging.NewLogger("spellcheck"),
	})
	if err != nil {
		code := taraerrors.CodeOf(err)
		if code != taraerrors.ErrorNotFound && code != taraerrors.ErrorEmptySet {
			return nil, fmt.Errorf("failed to load dictionaries: %w", err)
		}
		logger.Warn("WARNING: spellcheck unavailable, dictionaries not loaded",
			"dir", cfg.DictionaryDir,
			"code", code,
		)
		corrector = nil
	}

	return NewProcessor(&Config{
		Segmenter: segmenter,
		Cropper:   cropper,
		Extractor: extractor,
		Corrector: corrector,
		Store:     store,
		Logger:    logger,
	})
}

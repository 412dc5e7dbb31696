/**
 * Tesseract OCR engine
 *
 * Offline OCR through gosseract. A fresh client is created per call so the
 * engine can be shared by the extractor and the cropper's region reader.
 */

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// PageSegMode is tesseract's page segmentation mode
type PageSegMode int

const (
	PSM_OSD_ONLY               PageSegMode = 0  // Orientation and script detection only
	PSM_AUTO_OSD               PageSegMode = 1  // Automatic with OSD
	PSM_AUTO_ONLY              PageSegMode = 2  // Automatic, no OSD or OCR
	PSM_AUTO                   PageSegMode = 3  // Fully automatic (default)
	PSM_SINGLE_COLUMN          PageSegMode = 4  // Single column of variable sizes
	PSM_SINGLE_BLOCK_VERT_TEXT PageSegMode = 5  // Single uniform block of vertically aligned text
	PSM_SINGLE_BLOCK           PageSegMode = 6  // Single uniform block of text
	PSM_SINGLE_LINE            PageSegMode = 7  // Single text line
	PSM_SINGLE_WORD            PageSegMode = 8  // Single word
	PSM_CIRCLE_WORD            PageSegMode = 9  // Single word in a circle
	PSM_SINGLE_CHAR            PageSegMode = 10 // Single character
	PSM_SPARSE_TEXT            PageSegMode = 11 // Find as much text as possible
	PSM_SPARSE_TEXT_OSD        PageSegMode = 12 // Sparse text with OSD
	PSM_RAW_LINE               PageSegMode = 13 // Treat image as single text line
)

// Valid reports whether m is a mode tesseract understands
func (m PageSegMode) Valid() bool {
	return m >= PSM_OSD_ONLY && m <= PSM_RAW_LINE
}

// Engine extracts text from an encoded image
type Engine interface {
	Recognize(ctx context.Context, image []byte, psm PageSegMode) (string, error)
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages []string
}

// TesseractEngine handles OCR using Tesseract
type TesseractEngine struct {
	languages []string
}

// NewTesseractEngine creates a new Tesseract engine
func NewTesseractEngine(cfg *TesseractConfig) (*TesseractEngine, error) {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"eng"}
	}

	return &TesseractEngine{languages: languages}, nil
}

// Recognize performs OCR on one encoded image
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte, psm PageSegMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !psm.Valid() {
		return "", fmt.Errorf("invalid page segmentation mode %d", psm)
	}

	// gosseract clients hold tesseract API state and are not safe to share
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("failed to set languages %v: %w", t.languages, err)
	}

	if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return text, nil
}

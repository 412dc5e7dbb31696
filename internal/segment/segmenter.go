/**
 * PDF segmentation
 *
 * Splits [1, N] into contiguous ranges, rasterizes each range on its own
 * goroutine into <workdir>/images/{page}.jpg, then joins and returns the
 * pages sorted by numeric index.
 */

package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/page"
)

// ImagesDir is the subdirectory of a working directory holding page rasters
const ImagesDir = "images"

// PageRange is an inclusive 1-based page span
type PageRange struct {
	First int
	Last  int
}

// Partition splits [1, pageCount] into at most workers contiguous ranges of ceil(pageCount/workers) pages
func Partition(pageCount, workers int) []PageRange {
	if pageCount <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	batch := (pageCount + workers - 1) / workers
	ranges := make([]PageRange, 0, workers)
	for first := 1; first <= pageCount; first += batch {
		last := first + batch - 1
		if last > pageCount {
			last = pageCount
		}
		ranges = append(ranges, PageRange{First: first, Last: last})
	}
	return ranges
}

// WorkDir returns <dir of path>/<stem of path>
func WorkDir(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(path), stem)
}

// PrepareWorkDir creates an empty working directory with its images subdirectory, clearing any previous run
func PrepareWorkDir(dir string) (string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear work dir %s: %w", dir, err)
	}
	images := filepath.Join(dir, ImagesDir)
	if err := os.MkdirAll(images, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", images, err)
	}
	return images, nil
}

// Config holds segmenter configuration
type Config struct {
	Rasterizer Rasterizer
	Workers    int
	Timeout    time.Duration
	Logger     *logging.Logger
}

// Segmenter turns a PDF into ordered page images
type Segmenter struct {
	rasterizer Rasterizer
	workers    int
	timeout    time.Duration
	logger     *logging.Logger
}

// NewSegmenter creates a new segmenter
func NewSegmenter(cfg *Config) (*Segmenter, error) {
	if cfg.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", cfg.Timeout)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("segment")
	}

	return &Segmenter{
		rasterizer: cfg.Rasterizer,
		workers:    cfg.Workers,
		timeout:    cfg.Timeout,
		logger:     logger,
	}, nil
}

// Segment rasterizes every page of the PDF at path. The working directory is
// created (empty) whenever its parent exists, even when validation fails.
func (s *Segmenter) Segment(ctx context.Context, path string) ([]page.Image, error) {
	workDir := WorkDir(path)
	if _, err := os.Stat(filepath.Dir(path)); err == nil && workDir != filepath.Clean(path) {
		if _, err := PrepareWorkDir(workDir); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, taraerrors.NewNotFoundError(path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return nil, taraerrors.NewTypeMismatchError(path, ext, []string{".pdf"})
	}

	if err := CopyFile(path, filepath.Join(workDir, filepath.Base(path))); err != nil {
		return nil, err
	}

	n, err := s.rasterizer.PageCount(ctx, path)
	if err != nil {
		return nil, err
	}

	imagesDir := filepath.Join(workDir, ImagesDir)
	ranges := Partition(n, s.workers)

	s.logger.Info("segmenting pdf",
		"path", path,
		"pages", n,
		"workers", len(ranges),
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range ranges {
		g.Go(func() error {
			for p := r.First; p <= r.Last; p++ {
				if err := s.rasterize(gctx, path, p, imagesDir); err != nil {
					return err
				}
				s.logger.Debug("page rasterized", "page", p, "total", n)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	images, err := page.List(imagesDir)
	if err != nil {
		return nil, err
	}
	if len(images) != n {
		return nil, fmt.Errorf("segmenter produced %d pages, expected %d", len(images), n)
	}

	s.logger.Info("segmentation complete",
		"path", path,
		"pages", n,
		"elapsed", time.Since(start),
	)

	return images, nil
}

func (s *Segmenter) rasterize(ctx context.Context, path string, p int, imagesDir string) error {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prefix := filepath.Join(imagesDir, strconv.Itoa(p))
	out, err := s.rasterizer.RasterizePage(pctx, path, p, prefix)
	if err != nil {
		if ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return taraerrors.NewTimeoutError(path, p, s.timeout, err)
		}
		return fmt.Errorf("failed to rasterize page %d of %s: %w", p, path, err)
	}

	want := filepath.Join(imagesDir, page.FileName(p))
	if out != want {
		if err := os.Rename(out, want); err != nil {
			return fmt.Errorf("failed to rename %s: %w", out, err)
		}
	}
	return nil
}

// CopyFile copies src to dst, truncating dst
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

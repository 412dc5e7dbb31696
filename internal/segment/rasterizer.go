package segment

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Rasterizer converts PDF pages into raster files
type Rasterizer interface {
	// PageCount returns the number of pages in the PDF at path
	PageCount(ctx context.Context, path string) (int, error)
	// RasterizePage renders one 1-based page to outPrefix+".jpg" and returns the written path
	RasterizePage(ctx context.Context, path string, pageNum int, outPrefix string) (string, error)
}

// PopplerRasterizer renders pages with poppler's pdftoppm and counts pages with pdfcpu
type PopplerRasterizer struct {
	Binary string
	DPI    int
}

// NewPopplerRasterizer creates a rasterizer; binary defaults to "pdftoppm", dpi to 200
func NewPopplerRasterizer(binary string, dpi int) *PopplerRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 200
	}
	return &PopplerRasterizer{Binary: binary, DPI: dpi}
}

// PageCount reads the page tree with pdfcpu
func (r *PopplerRasterizer) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	return n, nil
}

// RasterizePage runs pdftoppm for a single page; ctx bounds the subprocess
func (r *PopplerRasterizer) RasterizePage(ctx context.Context, path string, pageNum int, outPrefix string) (string, error) {
	n := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, r.Binary,
		"-f", n, "-l", n,
		"-r", strconv.Itoa(r.DPI),
		"-jpeg", "-singlefile",
		path, outPrefix,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("pdftoppm page %d: %w: %s", pageNum, err, strings.TrimSpace(stderr.String()))
	}

	return outPrefix + ".jpg", nil
}

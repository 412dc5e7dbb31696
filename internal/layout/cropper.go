/**
 * Layout cropper
 *
 * Finds text blocks on a page raster, drops noise specks, strips a running
 * header and a page number when OCR of the region confirms them, and crops the
 * page to the envelope of the remaining blocks.
 */

package layout

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"sort"

	"golang.org/x/image/draw"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/page"
)

// Flags selects the optional cropper steps
type Flags uint

const (
	NoFlags           Flags = 0
	CropRunningHeader Flags = 1 << 1
	CropPageNumber    Flags = 1 << 2
	ResizeImage       Flags = 1 << 3
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Thresholds are the tuning constants of the heuristics. Ratios are fractions of image height.
type Thresholds struct {
	HeaderMargin    float64
	HeaderMaxAspect float64
	FooterMargin    float64
	FooterMinAspect float64
	NoiseMinAspect  float64
	NoiseMaxSize    int
	RegionMargin    int
	DilateKernel    int
	ResizeWidth     int

	PageNumberAcceptsDigits bool
}

// DefaultThresholds returns the stock values
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeaderMargin:    0.10,
		HeaderMaxAspect: 0.3,
		FooterMargin:    0.90,
		FooterMinAspect: 0.7,
		NoiseMinAspect:  0.8,
		NoiseMaxSize:    1000,
		RegionMargin:    3,
		DilateKernel:    15,
		ResizeWidth:     2480,
	}
}

// RegionReader reads the text inside one region of an image
type RegionReader interface {
	ReadRegion(ctx context.Context, img image.Image, region image.Rectangle) (string, error)
}

// Config holds cropper configuration
type Config struct {
	Thresholds Thresholds
	Reader     RegionReader
	Logger     *logging.Logger
}

// Cropper isolates body text on page rasters
type Cropper struct {
	thresholds Thresholds
	reader     RegionReader
	logger     *logging.Logger
}

// Result describes what Crop decided for one image
type Result struct {
	Boxes      int
	Envelope   BoundingBox
	Header     *BoundingBox
	PageNumber *BoundingBox
	Cropped    bool
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)
var alphaOnly = regexp.MustCompile(`^[a-zA-Z]+$`)

// NewCropper creates a new cropper
func NewCropper(cfg *Config) (*Cropper, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("region reader is required")
	}
	if cfg.Thresholds.DilateKernel < 1 {
		return nil, fmt.Errorf("dilate kernel must be at least 1, got %d", cfg.Thresholds.DilateKernel)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("layout")
	}

	return &Cropper{
		thresholds: cfg.Thresholds,
		reader:     cfg.Reader,
		logger:     logger,
	}, nil
}

// FilterNoise drops tall narrow specks: h/w above NoiseMinAspect and size below NoiseMaxSize
func (c *Cropper) FilterNoise(boxes []BoundingBox) []BoundingBox {
	kept := make([]BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		if b.Aspect() > c.thresholds.NoiseMinAspect && b.Size() < c.thresholds.NoiseMaxSize {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// Crop returns m cropped to its body text. When no usable block survives, m is returned as is.
func (c *Cropper) Crop(ctx context.Context, m image.Image, flags Flags) (image.Image, Result, error) {
	boxes := Detect(m, c.thresholds.DilateKernel)

	envelope, res, err := c.Plan(ctx, m, boxes, flags)
	if err != nil {
		return m, res, err
	}

	out := m
	if res.Cropped {
		origin := m.Bounds().Min
		out = subImage(m, envelope.Rect().Add(origin))
	}

	if flags.Has(ResizeImage) {
		out = Resize(out, c.thresholds.ResizeWidth)
	}

	return out, res, nil
}

// Plan applies the noise filter and enabled heuristics to boxes, which are
// relative to m's origin, and returns the envelope to crop to.
func (c *Cropper) Plan(ctx context.Context, m image.Image, boxes []BoundingBox, flags Flags) (BoundingBox, Result, error) {
	var res Result

	boxes = c.FilterNoise(boxes)
	res.Boxes = len(boxes)
	if len(boxes) == 0 {
		c.logger.Debug("no text blocks survived noise filter", "code", taraerrors.ErrorEmptySet)
		return BoundingBox{}, res, nil
	}

	res.Envelope, _ = Union(boxes)
	height := m.Bounds().Dy()

	if flags.Has(CropRunningHeader) {
		header, err := c.findHeader(ctx, m, boxes, height)
		if err != nil {
			return BoundingBox{}, res, err
		}
		if header != nil {
			cutoff := min(header.Bottom()+c.thresholds.RegionMargin, height)
			boxes = keep(boxes, func(b BoundingBox) bool { return b.Y > cutoff })
			res.Header = header
		}
	}

	if flags.Has(CropPageNumber) {
		number, err := c.findPageNumber(ctx, m, boxes, height)
		if err != nil {
			return BoundingBox{}, res, err
		}
		if number != nil {
			cutoff := max(number.Y-c.thresholds.RegionMargin, 0)
			boxes = keep(boxes, func(b BoundingBox) bool { return b.Y < cutoff })
			res.PageNumber = number
		}
	}

	if len(boxes) == 0 {
		c.logger.Debug("header and page number removal left no text blocks", "code", taraerrors.ErrorEmptySet)
		res.Header, res.PageNumber = nil, nil
		return BoundingBox{}, res, nil
	}

	envelope, _ := Union(boxes)
	res.Envelope = envelope
	res.Cropped = true
	return envelope, res, nil
}

func (c *Cropper) findHeader(ctx context.Context, m image.Image, boxes []BoundingBox, height int) (*BoundingBox, error) {
	limit := c.thresholds.HeaderMargin * float64(height)
	candidates := keep(boxes, func(b BoundingBox) bool {
		return float64(b.Y) < limit && b.Aspect() < c.thresholds.HeaderMaxAspect
	})
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Y < candidates[j].Y })

	return c.firstConfirmed(ctx, m, candidates, false)
}

func (c *Cropper) findPageNumber(ctx context.Context, m image.Image, boxes []BoundingBox, height int) (*BoundingBox, error) {
	limit := c.thresholds.FooterMargin * float64(height)
	candidates := keep(boxes, func(b BoundingBox) bool {
		return float64(b.Y) > limit && b.Aspect() > c.thresholds.FooterMinAspect
	})
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Y > candidates[j].Y })

	return c.firstConfirmed(ctx, m, candidates, c.thresholds.PageNumberAcceptsDigits)
}

// firstConfirmed reads candidates in order and returns the first whose text passes the alphabetic test
func (c *Cropper) firstConfirmed(ctx context.Context, m image.Image, candidates []BoundingBox, digits bool) (*BoundingBox, error) {
	origin := m.Bounds().Min
	local := image.Rect(0, 0, m.Bounds().Dx(), m.Bounds().Dy())

	for _, b := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		region := b.Expand(c.thresholds.RegionMargin, local).Add(origin)
		text, err := c.reader.ReadRegion(ctx, m, region)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("region OCR failed, treating region as body text",
				"box", b.String(),
				"error", err,
			)
			continue
		}

		if Confirms(text, digits) {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

// Confirms strips non-alphanumerics from region text and reports whether the
// remainder is non-empty and purely alphabetic (or any alphanumeric when digits is set).
func Confirms(text string, digits bool) bool {
	cleaned := nonAlnum.ReplaceAllString(text, "")
	if cleaned == "" {
		return false
	}
	return digits || alphaOnly.MatchString(cleaned)
}

// CropPage crops the raster at p.Path and writes the result back to the same file
func (c *Cropper) CropPage(ctx context.Context, p page.Image, flags Flags) (Result, error) {
	m, err := p.Load()
	if err != nil {
		return Result{}, err
	}

	out, res, err := c.Crop(ctx, m, flags)
	if err != nil {
		return res, err
	}

	if !res.Cropped && !flags.Has(ResizeImage) {
		c.logger.Warn("no usable text blocks, page left uncropped",
			"path", p.Path,
			"index", p.Index,
			"code", taraerrors.ErrorEmptySet,
		)
		return res, nil
	}

	if err := page.Save(p.Path, out); err != nil {
		return res, err
	}

	c.logger.Debug("page cropped",
		"path", p.Path,
		"index", p.Index,
		"envelope", res.Envelope.String(),
		"header", res.Header != nil,
		"page_number", res.PageNumber != nil,
	)
	return res, nil
}

// CropAll crops pages sequentially, in order. A missing file aborts; an undecodable one is skipped.
func (c *Cropper) CropAll(ctx context.Context, pages []page.Image, flags Flags) error {
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := c.CropPage(ctx, p, flags); err != nil {
			if taraerrors.HasCode(err, taraerrors.ErrorNotFound) || ctx.Err() != nil {
				return err
			}
			c.logger.Warn("failed to crop page, leaving it unchanged",
				"path", p.Path,
				"index", p.Index,
				"error", err,
			)
			continue
		}

		c.logger.Debug("crop progress", "done", i+1, "total", len(pages))
	}
	return nil
}

func keep(boxes []BoundingBox, pred func(BoundingBox) bool) []BoundingBox {
	out := make([]BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		if pred(b) {
			out = append(out, b)
		}
	}
	return out
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func subImage(m image.Image, r image.Rectangle) image.Image {
	if s, ok := m.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), m, r.Min, draw.Src)
	return dst
}

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// RegionRecognizer reads the text in one region of a page through an Engine.
// It satisfies layout.RegionReader.
type RegionRecognizer struct {
	Engine Engine
	PSM    PageSegMode
}

// NewRegionRecognizer creates a reader using the engine's fully automatic mode
func NewRegionRecognizer(engine Engine) *RegionRecognizer {
	return &RegionRecognizer{Engine: engine, PSM: PSM_AUTO}
}

// ReadRegion crops img to region, encodes it as PNG and recognizes it
func (p *RegionRecognizer) ReadRegion(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return "", fmt.Errorf("region %v outside image bounds %v", region, img.Bounds())
	}

	crop := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(crop, crop.Bounds(), img, region.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return "", fmt.Errorf("failed to encode region: %w", err)
	}

	return p.Engine.Recognize(ctx, buf.Bytes(), p.PSM)
}

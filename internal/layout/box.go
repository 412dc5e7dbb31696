package layout

import (
	"fmt"
	"image"
	"math"
)

// BoundingBox is an axis-aligned region found by component detection. W and H are never negative.
type BoundingBox struct {
	X, Y, W, H int
}

// NewBoundingBox clamps negative extents to zero
func NewBoundingBox(x, y, w, h int) BoundingBox {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return BoundingBox{X: x, Y: y, W: w, H: h}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("x: %d, y: %d, w: %d, h: %d", b.X, b.Y, b.W, b.H)
}

// Size is w*h
func (b BoundingBox) Size() int {
	return b.W * b.H
}

// Aspect is h/w; a zero-width box is infinitely tall
func (b BoundingBox) Aspect() float64 {
	if b.W == 0 {
		if b.H == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(b.H) / float64(b.W)
}

// Right is the exclusive right edge
func (b BoundingBox) Right() int { return b.X + b.W }

// Bottom is the exclusive bottom edge
func (b BoundingBox) Bottom() int { return b.Y + b.H }

// Overlaps reports whether other's origin lies within b expanded by dilation on every side
func (b BoundingBox) Overlaps(other BoundingBox, dilation int) bool {
	return b.X-dilation <= other.X && other.X <= b.X+b.W+dilation &&
		b.Y-dilation <= other.Y && other.Y <= b.Y+b.H+dilation
}

// Rect converts b to an image.Rectangle
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Expand grows b by margin on every side, clamped to bounds
func (b BoundingBox) Expand(margin int, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(b.X-margin, b.Y-margin, b.X+b.W+margin, b.Y+b.H+margin)
	return r.Intersect(bounds)
}

// Union returns the envelope of boxes: min x/y, max right/bottom. ok is false for an empty slice.
func Union(boxes []BoundingBox) (BoundingBox, bool) {
	if len(boxes) == 0 {
		return BoundingBox{}, false
	}

	minX, minY := boxes[0].X, boxes[0].Y
	maxR, maxB := boxes[0].Right(), boxes[0].Bottom()
	for _, b := range boxes[1:] {
		minX = min(minX, b.X)
		minY = min(minY, b.Y)
		maxR = max(maxR, b.Right())
		maxB = max(maxB, b.Bottom())
	}

	return NewBoundingBox(minX, minY, maxR-minX, maxB-minY), true
}

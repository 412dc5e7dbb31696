package layout

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/anthonynsimon/bild/transform"
)

/**
 * Raster primitives for text-block detection
 *
 * Grayscale -> bilateral smoothing -> Canny edges -> Otsu binarization ->
 * box dilation -> 8-connected components. Every stage works on *image.Gray
 * with its origin at (0, 0). Grayscale, thresholding, dilation and resizing
 * come from bild; the rest has no bild counterpart.
 */

// rebase re-anchors g at the origin without copying
func rebase(g *image.Gray) *image.Gray {
	if g.Rect.Min == (image.Point{}) {
		return g
	}
	return &image.Gray{Pix: g.Pix, Stride: g.Stride, Rect: image.Rect(0, 0, g.Rect.Dx(), g.Rect.Dy())}
}

// Grayscale converts m to an 8-bit luminance image anchored at the origin
func Grayscale(m image.Image) *image.Gray {
	if m.Bounds().Empty() {
		return image.NewGray(image.Rectangle{})
	}
	return rebase(effect.Grayscale(m))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Bilateral applies an edge-preserving smoothing filter with a circular window of diameter d
func Bilateral(src *image.Gray, d int, sigmaColor, sigmaSpace float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(src.Rect)
	radius := d / 2
	if radius < 1 {
		copy(out.Pix, src.Pix)
		return out
	}

	type tap struct {
		dx, dy int
		weight float64
	}
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			dist2 := dx*dx + dy*dy
			if dist2 > radius*radius {
				continue
			}
			taps = append(taps, tap{dx, dy, math.Exp(-float64(dist2) / (2 * sigmaSpace * sigmaSpace))})
		}
	}

	var colorWeight [256]float64
	for i := range colorWeight {
		colorWeight[i] = math.Exp(-float64(i*i) / (2 * sigmaColor * sigmaColor))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := int(src.Pix[y*src.Stride+x])
			var sum, wsum float64
			for _, t := range taps {
				sx := clamp(x+t.dx, 0, w-1)
				sy := clamp(y+t.dy, 0, h-1)
				v := int(src.Pix[sy*src.Stride+sx])
				diff := v - center
				if diff < 0 {
					diff = -diff
				}
				wt := t.weight * colorWeight[diff]
				sum += wt * float64(v)
				wsum += wt
			}
			out.Pix[y*out.Stride+x] = uint8(sum/wsum + 0.5)
		}
	}
	return out
}

// Canny returns a 0/255 edge map using 3x3 Sobel gradients, L1 magnitude,
// non-maximum suppression and hysteresis between low and high.
func Canny(src *image.Gray, low, high float64) *image.Gray {
	if low > high {
		low, high = high, low
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(src.Rect)
	if w < 3 || h < 3 {
		return out
	}

	at := func(x, y int) int {
		return int(src.Pix[clamp(y, 0, h-1)*src.Stride+clamp(x, 0, w-1)])
	}

	gx := make([]int, w*h)
	gy := make([]int, w*h)
	mag := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = abs(dx) + abs(dy)
		}
	}

	magAt := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	// 0 = suppressed, 1 = weak candidate, 2 = strong
	state := make([]uint8, w*h)
	var stack []int
	lowI, highI := int(low), int(high)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= lowI {
				continue
			}

			ax, ay := abs(gx[i]), abs(gy[i])
			var a, b int
			switch {
			case ay*1000 <= ax*414:
				a, b = magAt(x-1, y), magAt(x+1, y)
			case ay*1000 >= ax*2414:
				a, b = magAt(x, y-1), magAt(x, y+1)
			case (gx[i] > 0) == (gy[i] > 0):
				a, b = magAt(x-1, y-1), magAt(x+1, y+1)
			default:
				a, b = magAt(x+1, y-1), magAt(x-1, y+1)
			}
			if m <= a || m < b {
				continue
			}

			if m > highI {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[(i/w)*out.Stride+i%w] = 255

		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == 1 {
					state[j] = 2
					stack = append(stack, j)
				}
			}
		}
	}

	return out
}

// Otsu returns the threshold that maximizes between-class variance of src's histogram
func Otsu(src *image.Gray) uint8 {
	var hist [256]int
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}

	total := w * h
	if total == 0 {
		return 0
	}

	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i * n)
	}

	var sumB float64
	var weightB int
	var best float64 = -1
	var threshold uint8
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		meanB := sumB / float64(weightB)
		meanF := (sumAll - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// Binarize maps pixels above t to 255 and the rest to 0
func Binarize(src *image.Gray, t uint8) *image.Gray {
	if t == 255 {
		return image.NewGray(src.Rect)
	}
	return rebase(segment.Threshold(src, t+1))
}

// Dilate grows foreground with a k x k box kernel centered on each pixel.
// Even kernels round up to the next odd size.
func Dilate(src *image.Gray, k int) *image.Gray {
	out := image.NewGray(src.Rect)
	if k <= 1 {
		copy(out.Pix, src.Pix)
		return out
	}

	dilated := effect.Dilate(src, float64(k/2))
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if dilated.Pix[y*dilated.Stride+x*4] != 0 {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// Components returns the bounding box of every 8-connected foreground region, in scan order
func Components(src *image.Gray) []BoundingBox {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	seen := make([]bool, w*h)
	var boxes []BoundingBox
	var stack []int

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if seen[i] || src.Pix[y*src.Stride+x] == 0 {
				continue
			}

			minX, minY, maxX, maxY := x, y, x, y
			seen[i] = true
			stack = append(stack[:0], i)
			for len(stack) > 0 {
				j := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cx, cy := j%w, j/w
				minX, maxX = min(minX, cx), max(maxX, cx)
				minY, maxY = min(minY, cy), max(maxY, cy)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := cx+dx, cy+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						n := ny*w + nx
						if !seen[n] && src.Pix[ny*src.Stride+nx] != 0 {
							seen[n] = true
							stack = append(stack, n)
						}
					}
				}
			}

			boxes = append(boxes, NewBoundingBox(minX, minY, maxX-minX+1, maxY-minY+1))
		}
	}
	return boxes
}

// Detect runs the full detection chain and returns candidate text blocks
func Detect(m image.Image, kernel int) []BoundingBox {
	gray := Grayscale(m)
	smooth := Bilateral(gray, 9, 75, 75)
	edges := Canny(smooth, 150, 200)
	binary := Binarize(edges, Otsu(edges))
	return Components(Dilate(binary, kernel))
}

// Resize scales m to width, preserving aspect ratio
func Resize(m image.Image, width int) image.Image {
	b := m.Bounds()
	if width <= 0 || b.Dx() == 0 || width == b.Dx() {
		return m
	}
	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	return transform.Resize(m, width, height, transform.CatmullRom)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

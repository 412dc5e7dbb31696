// Package page models the ordered raster artifacts passed between pipeline stages.
package page

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
)

// JPEGQuality is used for every raster written by the pipeline
const JPEGQuality = 95

// ImageExtensions lists the raster formats the pipeline accepts
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}

var indexPattern = regexp.MustCompile(`\d+`)

// Image is one page raster on disk. Index is the page number parsed from the file name.
type Image struct {
	Index int
	Path  string
}

// FromPath builds an Image whose index is the first digit run in the file name (0 if none)
func FromPath(path string) Image {
	return Image{Index: ParseIndex(path), Path: path}
}

// ParseIndex returns the first run of digits in the base name of path, or 0
func ParseIndex(path string) int {
	m := indexPattern.FindString(filepath.Base(path))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// FileName is the on-disk name for page index
func FileName(index int) string {
	return fmt.Sprintf("%d.jpg", index)
}

// IsImage reports whether path has a supported raster extension
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Sort orders images by numeric page index, then path, never by creation order
func Sort(images []Image) {
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Index != images[j].Index {
			return images[i].Index < images[j].Index
		}
		return images[i].Path < images[j].Path
	})
}

// List returns the raster files in dir sorted by page index
func List(dir string) ([]Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, taraerrors.NewNotFoundError(dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var images []Image
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		images = append(images, FromPath(filepath.Join(dir, e.Name())))
	}

	Sort(images)
	return images, nil
}

// Load decodes the raster at img.Path
func (img Image) Load() (image.Image, error) {
	return Decode(img.Path)
}

// Bytes reads the encoded raster
func (img Image) Bytes() ([]byte, error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, taraerrors.NewNotFoundError(img.Path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", img.Path, err)
	}
	return data, nil
}

// Decode opens and decodes any supported raster
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, taraerrors.NewNotFoundError(path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return m, nil
}

// Save encodes m as JPEG at path, replacing any existing file
func Save(path string, m image.Image) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if err := jpeg.Encode(f, m, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	return os.Rename(tmp, path)
}

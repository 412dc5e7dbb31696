package segment

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/page"
)

type fakeRasterizer struct {
	pages int
	delay func(p int) time.Duration
	block bool

	mu    sync.Mutex
	order []int
}

func (f *fakeRasterizer) PageCount(ctx context.Context, path string) (int, error) {
	return f.pages, nil
}

func (f *fakeRasterizer) RasterizePage(ctx context.Context, path string, p int, prefix string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.delay != nil {
		time.Sleep(f.delay(p))
	}

	out := prefix + ".jpg"
	if err := page.Save(out, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.order = append(f.order, p)
	f.mu.Unlock()
	return out, nil
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestSegmenter(t *testing.T, r Rasterizer, timeout time.Duration) *Segmenter {
	t.Helper()
	s, err := NewSegmenter(&Config{
		Rasterizer: r,
		Workers:    4,
		Timeout:    timeout,
		Logger:     logging.Nop(),
	})
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}
	return s
}

func TestPartition(t *testing.T) {
	testCases := []struct {
		pages   int
		workers int
		want    []PageRange
	}{
		{10, 4, []PageRange{{1, 3}, {4, 6}, {7, 9}, {10, 10}}},
		{8, 4, []PageRange{{1, 2}, {3, 4}, {5, 6}, {7, 8}}},
		{2, 4, []PageRange{{1, 1}, {2, 2}}},
		{1, 4, []PageRange{{1, 1}}},
		{0, 4, nil},
	}

	for _, tc := range testCases {
		got := Partition(tc.pages, tc.workers)
		if len(got) != len(tc.want) {
			t.Errorf("Partition(%d, %d) = %v, want %v", tc.pages, tc.workers, got, tc.want)
			continue
		}
		covered := 0
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("Partition(%d, %d)[%d] = %v, want %v", tc.pages, tc.workers, i, got[i], tc.want[i])
			}
			covered += got[i].Last - got[i].First + 1
		}
		if covered != tc.pages {
			t.Errorf("Partition(%d, %d) covers %d pages", tc.pages, tc.workers, covered)
		}
	}
}

func TestSegmentOrdersByPageIndex(t *testing.T) {
	dir := t.TempDir()
	pdf := writePDF(t, dir, "book.pdf")

	// later pages finish first
	r := &fakeRasterizer{
		pages: 11,
		delay: func(p int) time.Duration { return time.Duration(12-p) * 2 * time.Millisecond },
	}
	s := newTestSegmenter(t, r, time.Second)

	images, err := s.Segment(context.Background(), pdf)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}

	if len(images) != 11 {
		t.Fatalf("Segment() returned %d pages, want 11", len(images))
	}
	for i, img := range images {
		if img.Index != i+1 {
			t.Errorf("images[%d].Index = %d, want %d", i, img.Index, i+1)
		}
		if filepath.Dir(img.Path) != filepath.Join(dir, "book", ImagesDir) {
			t.Errorf("images[%d] written to %s", i, img.Path)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "book", "book.pdf")); err != nil {
		t.Errorf("source pdf not copied into work dir: %v", err)
	}
}

func TestSegmentClearsPreviousRun(t *testing.T) {
	dir := t.TempDir()
	pdf := writePDF(t, dir, "book.pdf")
	stale := filepath.Join(dir, "book", ImagesDir, "99.jpg")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestSegmenter(t, &fakeRasterizer{pages: 2}, time.Second)
	images, err := s.Segment(context.Background(), pdf)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(images) != 2 {
		t.Errorf("Segment() returned %d pages, want 2", len(images))
	}
}

func TestSegmentTimeoutIsFatal(t *testing.T) {
	dir := t.TempDir()
	pdf := writePDF(t, dir, "slow.pdf")

	s := newTestSegmenter(t, &fakeRasterizer{pages: 3, block: true}, 20*time.Millisecond)
	_, err := s.Segment(context.Background(), pdf)
	if !taraerrors.HasCode(err, taraerrors.ErrorTimeout) {
		t.Fatalf("Segment() error = %v, want TIMEOUT", err)
	}
	if !taraerrors.IsFatal(err) {
		t.Errorf("timeout should be fatal")
	}
}

func TestSegmentValidation(t *testing.T) {
	dir := t.TempDir()
	s := newTestSegmenter(t, &fakeRasterizer{pages: 1}, time.Second)

	t.Run("missing file", func(t *testing.T) {
		_, err := s.Segment(context.Background(), filepath.Join(dir, "absent.pdf"))
		if !taraerrors.HasCode(err, taraerrors.ErrorNotFound) {
			t.Errorf("error = %v, want NOT_FOUND", err)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "notes.docx")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := s.Segment(context.Background(), path)
		if !taraerrors.HasCode(err, taraerrors.ErrorTypeMismatch) {
			t.Errorf("error = %v, want TYPE_MISMATCH", err)
		}

		entries, err := os.ReadDir(filepath.Join(dir, "notes", ImagesDir))
		if err != nil {
			t.Fatalf("work dir not created: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("work dir should be empty, has %d entries", len(entries))
		}
	})
}

func TestNewSegmenterValidation(t *testing.T) {
	if _, err := NewSegmenter(&Config{Workers: 4, Timeout: time.Second}); err == nil {
		t.Error("missing rasterizer should fail")
	}
	if _, err := NewSegmenter(&Config{Rasterizer: &fakeRasterizer{}, Workers: 0, Timeout: time.Second}); err == nil {
		t.Error("zero workers should fail")
	}
}

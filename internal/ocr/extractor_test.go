package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/page"
)

// scriptedEngine returns texts in call order and records the decoded image size of each call
type scriptedEngine struct {
	texts []string
	fail  int
	calls int
	sizes []image.Point
	psms  []PageSegMode
}

func (e *scriptedEngine) Recognize(ctx context.Context, data []byte, psm PageSegMode) (string, error) {
	e.calls++
	e.psms = append(e.psms, psm)
	if m, err := png.Decode(bytes.NewReader(data)); err == nil {
		e.sizes = append(e.sizes, m.Bounds().Size())
	}
	if e.fail == e.calls {
		return "", errors.New("engine exploded")
	}
	if len(e.texts) == 0 {
		return "", nil
	}
	return e.texts[(e.calls-1)%len(e.texts)], nil
}

func writePages(t *testing.T, n int) []page.Image {
	t.Helper()
	dir := t.TempDir()
	var pages []page.Image
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, page.FileName(i))
		if err := page.Save(path, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
			t.Fatal(err)
		}
		pages = append(pages, page.FromPath(path))
	}
	return pages
}

func newTestExtractor(t *testing.T, e Engine) *Extractor {
	t.Helper()
	x, err := NewExtractor(&ExtractorConfig{Engine: e, PSM: PSM_AUTO, Logger: logging.Nop()})
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}
	return x
}

func TestNormalize(t *testing.T) {
	pages := []string{
		"The quick brown fox jum-\nped over\n\nthe lazy dog ;\n“ Hello ”",
		"Second page",
	}

	testCases := []struct {
		name  string
		flags Flags
		want  []string
	}{
		{"no flags", NoFlags, pages},
		{
			"split",
			SplitPage,
			[]string{"The quick brown fox jum-\nped over", "the lazy dog ;\n“ Hello ”", "Second page"},
		},
		{
			"split and hyphenation",
			SplitPage | FixHyphenation,
			[]string{"The quick brown fox jumped over", "the lazy dog ;\n“ Hello ”", "Second page"},
		},
		{
			"hyphenation before newlines",
			FixHyphenation | FixNewlines,
			[]string{"The quick brown fox jumped over  the lazy dog ; “ Hello ”", "Second page"},
		},
		{
			"all",
			AllFlags,
			[]string{"The quick brown fox jumped over", "the lazy dog; “Hello”", "Second page"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(pages, tc.flags)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Normalize() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := []string{"a-\nb"}
	Normalize(in, FixHyphenation)
	if in[0] != "a-\nb" {
		t.Errorf("input mutated to %q", in[0])
	}
}

func TestExtractInPageOrder(t *testing.T) {
	engine := &scriptedEngine{texts: []string{"one", "two", "three"}}
	x := newTestExtractor(t, engine)

	got, err := x.Extract(context.Background(), writePages(t, 3), NoFlags)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"one", "two", "three"}) {
		t.Errorf("Extract() = %q", got)
	}
	for _, psm := range engine.psms {
		if psm != PSM_AUTO {
			t.Errorf("engine called with psm %d", psm)
		}
	}
}

func TestExtractFailFast(t *testing.T) {
	t.Run("missing page", func(t *testing.T) {
		engine := &scriptedEngine{texts: []string{"x"}}
		pages := writePages(t, 3)
		if err := os.Remove(pages[1].Path); err != nil {
			t.Fatal(err)
		}

		got, err := newTestExtractor(t, engine).Extract(context.Background(), pages, NoFlags)
		if !taraerrors.HasCode(err, taraerrors.ErrorNotFound) {
			t.Fatalf("Extract() error = %v, want NOT_FOUND", err)
		}
		if got != nil {
			t.Errorf("partial results returned: %q", got)
		}
		if engine.calls != 1 {
			t.Errorf("engine called %d times, want 1", engine.calls)
		}
	})

	t.Run("engine error", func(t *testing.T) {
		engine := &scriptedEngine{texts: []string{"x"}, fail: 2}
		got, err := newTestExtractor(t, engine).Extract(context.Background(), writePages(t, 3), NoFlags)
		if !taraerrors.HasCode(err, taraerrors.ErrorOCRFailed) {
			t.Fatalf("Extract() error = %v, want OCR_FAILED", err)
		}
		if got != nil {
			t.Errorf("partial results returned: %q", got)
		}
	})
}

func TestSeparator(t *testing.T) {
	if Separator(SplitPage|FixNewlines) != "\n\n" {
		t.Errorf("paragraph separator should be a blank line")
	}
	if Separator(FixNewlines) != "\n" {
		t.Errorf("page separator should be a newline")
	}
}

func TestRegionRecognizerCrops(t *testing.T) {
	engine := &scriptedEngine{texts: []string{"HEADER"}}
	p := NewRegionRecognizer(engine)

	m := image.NewRGBA(image.Rect(0, 0, 100, 80))
	text, err := p.ReadRegion(context.Background(), m, image.Rect(10, 5, 60, 25))
	if err != nil {
		t.Fatalf("ReadRegion() error = %v", err)
	}
	if text != "HEADER" {
		t.Errorf("ReadRegion() = %q", text)
	}
	if len(engine.sizes) != 1 || engine.sizes[0] != image.Pt(50, 20) {
		t.Errorf("engine saw sizes %v, want [(50,20)]", engine.sizes)
	}

	if _, err := p.ReadRegion(context.Background(), m, image.Rect(200, 200, 210, 210)); err == nil {
		t.Errorf("ReadRegion() outside bounds should fail")
	}
}

func TestTesseractEngineRejectsBeforeOCR(t *testing.T) {
	engine, err := NewTesseractEngine(&TesseractConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(engine.languages, []string{"eng"}) {
		t.Errorf("default languages = %v, want [eng]", engine.languages)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		psm  PageSegMode
	}{
		{"cancelled context", cancelled, PSM_AUTO},
		{"mode below range", context.Background(), PageSegMode(-1)},
		{"mode above range", context.Background(), PSM_RAW_LINE + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Recognize(tt.ctx, []byte("not an image"), tt.psm); err == nil {
				t.Errorf("Recognize() should fail")
			}
		})
	}
}

func TestNewExtractorValidation(t *testing.T) {
	if _, err := NewExtractor(&ExtractorConfig{PSM: PSM_AUTO}); err == nil {
		t.Error("missing engine should fail")
	}
	if _, err := NewExtractor(&ExtractorConfig{Engine: &scriptedEngine{}, PSM: 14}); err == nil {
		t.Error("psm 14 should fail")
	}
}

package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/page"
	"github.com/belfastkeyboard/TARA/internal/segment"
)

// InputKind is the closed set of inputs the pipeline accepts
type InputKind int

const (
	KindImage InputKind = iota
	KindPDF
	KindText
	KindDirectory
)

func (k InputKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	case KindText:
		return "text"
	case KindDirectory:
		return "directory"
	}
	return fmt.Sprintf("InputKind(%d)", int(k))
}

// acceptedExtensions lists every file extension ResolveInput recognizes
func acceptedExtensions() []string {
	return append(append([]string{}, page.ImageExtensions...), ".pdf", ".txt")
}

// ResolveInput classifies path by extension, or as a directory
func ResolveInput(path string) (InputKind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, taraerrors.NewNotFoundError(path)
	}
	if info.IsDir() {
		return KindDirectory, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case page.IsImage(path):
		return KindImage, nil
	case ext == ".pdf":
		return KindPDF, nil
	case ext == ".txt":
		return KindText, nil
	}
	return 0, taraerrors.NewTypeMismatchError(path, ext, acceptedExtensions())
}

// Mode selects which stages run
type Mode int

const (
	// ModeAll scans images and PDFs and corrects text files
	ModeAll Mode = iota
	// ModeScan only extracts text from images and PDFs
	ModeScan
	// ModeSpellcheck only corrects text files
	ModeSpellcheck
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeScan:
		return "scan"
	case ModeSpellcheck:
		return "spellcheck"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode is the inverse of Mode.String
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ModeAll, nil
	case "scan":
		return ModeScan, nil
	case "spellcheck":
		return ModeSpellcheck, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Accepts reports whether mode m can process inputs of kind k
func (m Mode) Accepts(k InputKind) bool {
	switch m {
	case ModeAll:
		return true
	case ModeScan:
		return k != KindText
	case ModeSpellcheck:
		return k == KindText || k == KindDirectory
	}
	return false
}

// OutputPaths returns the plain and corrected text paths written for a source file
func OutputPaths(source string) (text, spellchecked string) {
	dir := filepath.Dir(source)
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+".txt"), filepath.Join(dir, stem+" spellchecked.txt")
}

// isOutput reports whether name looks like a corrected text this pipeline wrote
func isOutput(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), " spellchecked.txt")
}

// collectEntries lists the files under root in path order. Subdirectories are
// descended into except the working directories of PDFs and images beside them.
func collectEntries(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && isWorkDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isOutput(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// isWorkDir reports whether dir is named after a PDF or image in its parent
func isWorkDir(dir string) bool {
	siblings, err := os.ReadDir(filepath.Dir(dir))
	if err != nil {
		return false
	}
	name := filepath.Base(dir)
	for _, s := range siblings {
		if s.IsDir() {
			continue
		}
		source := page.IsImage(s.Name()) || strings.EqualFold(filepath.Ext(s.Name()), ".pdf")
		if source && segment.WorkDir(s.Name()) == name {
			return true
		}
	}
	return false
}

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/belfastkeyboard/TARA/internal/layout"
	"github.com/belfastkeyboard/TARA/internal/ocr"
	"github.com/belfastkeyboard/TARA/internal/storage"
)

// setupRecordedJob points configuration at a fresh SQLite database holding one
// completed job with two documents, and at a Redis nothing listens on
func setupRecordedJob(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "tara.db")
	t.Setenv("TARA_CONFIG", configPath)
	t.Setenv("DICTIONARY_DIR", dir)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", dbPath)
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1/0")

	ctx := context.Background()
	store, err := storage.Open(ctx, "sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	const jobID = "job-1"
	if err := store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:  jobID,
		Status: storage.StatusProcessing,
		Source: "/scans/book.pdf",
		Mode:   "all",
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:    jobID,
		Status:   storage.StatusCompleted,
		Metadata: map[string]interface{}{"pages": 3},
	}); err != nil {
		t.Fatal(err)
	}
	for _, d := range []storage.Document{
		{JobID: jobID, Source: "/scans/book.pdf", Kind: "pdf", TextPath: "/scans/book.txt", SpellcheckedPath: "/scans/book spellchecked.txt", PageCount: 3, ParagraphCount: 9},
		{JobID: "job-2", Source: "/scans/other.pdf", Kind: "pdf", TextPath: "/scans/other.txt", PageCount: 1},
	} {
		if err := store.SaveDocument(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}
	return jobID
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	if cmd.Use != "tara" {
		t.Errorf("Use = %q", cmd.Use)
	}
	if cmd.Version == "" {
		t.Error("expected non-empty version")
	}

	want := map[string]bool{"digitize": false, "scan": false, "spellcheck": false, "enqueue": false, "status": false, "documents": false, "dict": false, "version": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}

	for _, name := range []string{"verbose", "dictionaries"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag %q", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "tara version") || !strings.Contains(buf.String(), "commit:") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestOptionsFromFlags(t *testing.T) {
	testCases := []struct {
		name  string
		flags []string
		crop  layout.Flags
		scan  ocr.Flags
		spell bool
	}{
		{"defaults", nil, layout.CropRunningHeader | layout.CropPageNumber, ocr.AllFlags, true},
		{"keep header", []string{"no-crop-header"}, layout.CropPageNumber, ocr.AllFlags, true},
		{"resize only", []string{"no-crop-header", "no-crop-page-number", "resize"}, layout.ResizeImage, ocr.AllFlags, true},
		{"raw pages", []string{"no-split", "no-fix-newlines"}, layout.CropRunningHeader | layout.CropPageNumber, ocr.FixHyphenation | ocr.FixPunctuationSpacing, true},
		{"no spellcheck", []string{"no-spellcheck"}, layout.CropRunningHeader | layout.CropPageNumber, ocr.AllFlags, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := NewDigitizeCmd()
			for _, f := range tc.flags {
				if err := cmd.Flags().Set(f, "true"); err != nil {
					t.Fatal(err)
				}
			}
			opts := optionsFromFlags(cmd)
			if opts.CropFlags != tc.crop || opts.ScanFlags != tc.scan || opts.Spellcheck != tc.spell {
				t.Errorf("options = %+v", opts)
			}
		})
	}

	// spellcheck has no stage flags and keeps the defaults
	if opts := optionsFromFlags(NewSpellcheckCmd()); !opts.Spellcheck {
		t.Errorf("spellcheck options = %+v", opts)
	}
}

func TestDictMerge(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	out := filepath.Join(dir, "merged.txt")
	if err := os.WriteFile(a, []byte("the 10\ncat 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("the 5\nant 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"dict", "merge", "-o", out, a, b})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "the 15\nant 3\ncat 3\n" {
		t.Errorf("merged = %q", got)
	}
}

func TestDictCount(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.txt")
	if err := os.WriteFile(corpus, []byte("a b a\nc a b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"dict", "count", corpus})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if buf.String() != "a 3\nb 2\nc 1\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestDictMergeMissingFile(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"dict", "merge", filepath.Join(t.TempDir(), "missing.txt")})
	if err := cmd.Execute(); err == nil {
		t.Error("merging a missing file should fail")
	}
}

func TestStatusCmd(t *testing.T) {
	jobID := setupRecordedJob(t)

	testCases := []struct {
		name    string
		args    []string
		want    []string
		wantErr error
	}{
		{"recorded job", []string{"status", jobID}, []string{"job job-1", "status: completed", "source: /scans/book.pdf", "mode: all", "pages: 3"}, nil},
		{"unknown job", []string{"status", "missing"}, nil, storage.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			cmd := NewRootCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&errOut)
			cmd.SetArgs(tc.args)

			err := cmd.Execute()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Execute() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output %q missing %q", out.String(), w)
				}
			}
			if !strings.Contains(errOut.String(), "queue status unavailable") {
				t.Errorf("stderr = %q, want a queue warning", errOut.String())
			}
		})
	}
}

func TestStatusCmdCountsNeedRedis(t *testing.T) {
	setupRecordedJob(t)

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"status"})
	if err := cmd.Execute(); err == nil {
		t.Error("status without a reachable Redis should fail")
	}
}

func TestDocumentsCmd(t *testing.T) {
	jobID := setupRecordedJob(t)

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"documents", jobID})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := "/scans/book.pdf\tpdf\t3\t9\t/scans/book.txt\t/scans/book spellchecked.txt\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestDocumentsCmdNoDocuments(t *testing.T) {
	setupRecordedJob(t)

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"documents", "job-3"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Len() != 0 || !strings.Contains(errOut.String(), "no documents recorded") {
		t.Errorf("stdout = %q, stderr = %q", out.String(), errOut.String())
	}
}

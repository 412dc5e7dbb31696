package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/belfastkeyboard/TARA/internal/config"
	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/layout"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/ocr"
	"github.com/belfastkeyboard/TARA/internal/pipeline"
	"github.com/belfastkeyboard/TARA/internal/storage"
)

// NewDigitizeCmd creates the digitize command.
func NewDigitizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digitize <path>...",
		Short: "Scan images and PDFs, then spellcheck the extracted text",
		Long: `Digitize runs every stage on each input.

Images and PDFs are scanned into <name>.txt next to the source and then
corrected into "<name> spellchecked.txt". Text files are corrected only.
Directories process each file they contain.

Examples:
  tara digitize scans/book.pdf
  tara digitize --no-crop-header --resize scans/`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPipelineCmd(pipeline.ModeAll),
	}
	addScanFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "Extract text from images and PDFs without spellchecking",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPipelineCmd(pipeline.ModeScan),
	}
	addScanFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

// NewSpellcheckCmd creates the spellcheck command.
func NewSpellcheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spellcheck <path>...",
		Short: "Spellcheck text files line by line",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPipelineCmd(pipeline.ModeSpellcheck),
	}
	addRunFlags(cmd)
	return cmd
}

func addScanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("no-crop-header", false, "Keep running headers")
	f.Bool("no-crop-page-number", false, "Keep page numbers")
	f.Bool("resize", false, "Resize cropped pages to the configured width")
	f.Bool("no-split", false, "Keep each page as one block instead of splitting paragraphs")
	f.Bool("no-fix-hyphenation", false, "Keep line-end hyphenation")
	f.Bool("no-fix-newlines", false, "Keep line breaks inside paragraphs")
	f.Bool("no-fix-punctuation", false, "Keep spaces around quotes and semicolons")
	f.Bool("no-spellcheck", false, "Skip spellchecking the extracted text")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("record", false, "Record jobs and documents in the configured database")
}

// optionsFromFlags starts from the pipeline defaults and clears what the flags disable
func optionsFromFlags(cmd *cobra.Command) pipeline.Options {
	opts := pipeline.DefaultOptions()
	unset := func(name string) bool {
		v, err := cmd.Flags().GetBool(name)
		return err == nil && v
	}

	if unset("no-crop-header") {
		opts.CropFlags &^= layout.CropRunningHeader
	}
	if unset("no-crop-page-number") {
		opts.CropFlags &^= layout.CropPageNumber
	}
	if unset("resize") {
		opts.CropFlags |= layout.ResizeImage
	}
	if unset("no-split") {
		opts.ScanFlags &^= ocr.SplitPage
	}
	if unset("no-fix-hyphenation") {
		opts.ScanFlags &^= ocr.FixHyphenation
	}
	if unset("no-fix-newlines") {
		opts.ScanFlags &^= ocr.FixNewlines
	}
	if unset("no-fix-punctuation") {
		opts.ScanFlags &^= ocr.FixPunctuationSpacing
	}
	if unset("no-spellcheck") {
		opts.Spellcheck = false
	}
	return opts
}

func runPipelineCmd(mode pipeline.Mode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := logging.NewLogger("tara")

		var store *storage.Store
		if record, _ := cmd.Flags().GetBool("record"); record {
			store, err = openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
		}

		var docs pipeline.DocumentStore
		if store != nil {
			docs = store
		}
		proc, err := pipeline.Build(cfg, docs, logging.NewLogger("pipeline"))
		if err != nil {
			return err
		}

		opts := optionsFromFlags(cmd)
		failed := 0
		for _, path := range args {
			if err := ctx.Err(); err != nil {
				return err
			}

			req := &pipeline.Request{Path: path, Mode: mode, Options: opts}
			res, err := runOne(ctx, proc, store, req)
			if err != nil {
				failed++
				logger.Error("input failed",
					"path", path,
					"code", taraerrors.CodeOf(err),
					"error", err,
				)
				continue
			}
			for _, out := range res.Outputs() {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d inputs failed", failed, len(args))
		}
		return nil
	}
}

// runOne processes req and, when store is set, records the job around it
func runOne(ctx context.Context, proc *pipeline.Processor, store *storage.Store, req *pipeline.Request) (*pipeline.Result, error) {
	res, err := proc.Process(ctx, req)
	if store == nil {
		return res, err
	}

	update := &storage.JobUpdate{
		JobID:  req.JobID,
		Status: storage.StatusCompleted,
		Source: req.Path,
		Mode:   req.Mode.String(),
	}
	if err != nil {
		update.Status = storage.StatusFailed
		update.ErrorCode = string(taraerrors.CodeOf(err))
		update.ErrorMessage = err.Error()
	} else {
		update.Metadata = map[string]interface{}{
			"outputs": res.Outputs(),
			"pages":   res.Pages,
		}
	}
	if serr := store.UpdateJobStatus(ctx, update); serr != nil {
		logging.NewLogger("tara").Warn("WARNING: Failed to record job", "job_id", req.JobID, "error", serr)
	}
	return res, err
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

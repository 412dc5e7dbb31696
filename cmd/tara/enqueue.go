package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/belfastkeyboard/TARA/internal/pipeline"
	"github.com/belfastkeyboard/TARA/internal/queue"
)

// NewEnqueueCmd creates the enqueue command.
func NewEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <path>...",
		Short: "Submit inputs to the worker queue",
		Long: `Enqueue submits one digitize job per input to the Redis queue consumed
by tara-worker and prints each job ID. Paths are made absolute so the worker
resolves them the same way.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runEnqueueCmd,
	}
	cmd.Flags().StringP("mode", "m", pipeline.ModeAll.String(), "Pipeline mode: all, scan or spellcheck")
	addScanFlags(cmd)
	return cmd
}

func runEnqueueCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	mode, _ := cmd.Flags().GetString("mode")
	if _, err := pipeline.ParseMode(mode); err != nil {
		return err
	}

	enqueuer, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		return err
	}
	defer enqueuer.Close()

	opts := optionsFromFlags(cmd)
	for _, path := range args {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}

		jobID, err := enqueuer.Enqueue(cmd.Context(), &queue.Payload{
			Path:       abs,
			Mode:       mode,
			CropFlags:  int(opts.CropFlags),
			ScanFlags:  int(opts.ScanFlags),
			Spellcheck: opts.Spellcheck,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", jobID, abs)
	}
	return nil
}

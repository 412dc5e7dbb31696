package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/belfastkeyboard/TARA/internal/config"
	"github.com/belfastkeyboard/TARA/internal/queue"
	"github.com/belfastkeyboard/TARA/internal/storage"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show queue counts or the state of one job",
		Long: `Without arguments, status prints how many jobs the worker has in each
state. With a job ID it prints the job recorded in the database and the
result or error details the worker published to Redis.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	tracker, trackerErr := queue.NewStatusTracker(ctx, cfg.RedisURL, cfg.QueueName)
	if trackerErr == nil {
		defer tracker.Close()
	}

	if len(args) == 0 {
		if trackerErr != nil {
			return trackerErr
		}
		stats, err := tracker.Stats(ctx)
		if err != nil {
			return err
		}
		for _, status := range []string{storage.StatusProcessing, storage.StatusCompleted, storage.StatusFailed} {
			fmt.Fprintf(out, "%s\t%d\n", status, stats[status])
		}
		return nil
	}

	jobID := args[0]
	found := false

	job, err := lookupJob(ctx, cfg, jobID)
	switch {
	case err == nil:
		found = true
		printJob(out, job)
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	if trackerErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: queue status unavailable: %v\n", trackerErr)
	} else {
		result, err := tracker.Result(ctx, jobID)
		switch {
		case err == nil:
			found = true
			fmt.Fprintln(out, "result:")
			printFields(out, result)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
	}

	if !found {
		return fmt.Errorf("job %s: %w", jobID, storage.ErrNotFound)
	}
	return nil
}

// lookupJob reads jobID from the database, reporting ErrNotFound when no database is configured
func lookupJob(ctx context.Context, cfg *config.Config, jobID string) (*storage.Job, error) {
	if cfg.DatabaseURL == "" {
		return nil, storage.ErrNotFound
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.GetJob(ctx, jobID)
}

func printJob(w io.Writer, job *storage.Job) {
	fmt.Fprintf(w, "job %s\n", job.ID)
	fmt.Fprintf(w, "  status: %s\n", job.Status)
	if job.Source != "" {
		fmt.Fprintf(w, "  source: %s\n", job.Source)
	}
	if job.Mode != "" {
		fmt.Fprintf(w, "  mode: %s\n", job.Mode)
	}
	if job.ErrorCode != "" || job.ErrorMessage != "" {
		fmt.Fprintf(w, "  error: %s %s\n", job.ErrorCode, job.ErrorMessage)
	}
	fmt.Fprintf(w, "  updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
	if len(job.Metadata) > 0 {
		printFields(w, job.Metadata)
	}
}

func printFields(w io.Writer, fields map[string]interface{}) {
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		fmt.Fprintf(w, "  %s: %v\n", k, fields[k])
	}
}

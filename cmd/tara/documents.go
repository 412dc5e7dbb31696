package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDocumentsCmd creates the documents command.
func NewDocumentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "documents <job-id>",
		Short: "List the documents a recorded job produced",
		Long: `Documents prints one line per document the job saved to the database:
source, kind, page and paragraph counts, then the text and spellchecked
output paths. Jobs are recorded by tara-worker and by digitize --record.`,
		Args: cobra.ExactArgs(1),
		RunE: runDocumentsCmd,
	}
}

func runDocumentsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := store.ListDocuments(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "no documents recorded for job %s\n", args[0])
		return nil
	}

	out := cmd.OutOrStdout()
	for _, d := range docs {
		fmt.Fprintf(out, "%s\t%s\t%d\t%d\t%s\t%s\n",
			d.Source, d.Kind, d.PageCount, d.ParagraphCount, d.TextPath, d.SpellcheckedPath)
	}
	return nil
}

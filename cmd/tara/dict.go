package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/belfastkeyboard/TARA/internal/spellcheck"
)

// NewDictCmd creates the dict command group.
func NewDictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Maintain frequency dictionaries",
	}
	cmd.AddCommand(newDictMergeCmd())
	cmd.AddCommand(newDictCountCmd())
	return cmd
}

func newDictMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <file>...",
		Short: "Merge frequency lists, summing the counts of identical words",
		Long: `Merge reads "word count" frequency lists and writes one list with the
counts of identical words summed, most frequent first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, err := spellcheck.MergeFrequencyFiles(args)
			if err != nil {
				return err
			}
			return writeFrequencies(cmd, freq)
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the list to a file instead of stdout")
	return cmd
}

func newDictCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count <text-file>...",
		Short: "Build a frequency list from plain text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total := make(map[string]int64)
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				freq, err := spellcheck.CountWords(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("failed to count %s: %w", path, err)
				}
				for w, n := range freq {
					total[w] += n
				}
			}
			return writeFrequencies(cmd, total)
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the list to a file instead of stdout")
	return cmd
}

func writeFrequencies(cmd *cobra.Command, freq map[string]int64) error {
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return spellcheck.WriteFrequencyList(cmd.OutOrStdout(), freq)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	if err := spellcheck.WriteFrequencyList(f, freq); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/belfastkeyboard/TARA/internal/config"
	"github.com/belfastkeyboard/TARA/internal/logging"
)

// NewRootCmd creates the root command for tara.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tara",
		Short: "Digitize scanned documents into corrected text",
		Long: `tara turns scanned PDFs and page images into plain text.

Each input runs through four stages: PDFs are split into page images,
running headers and page numbers are cropped away, the pages are read with
tesseract, and the extracted text is spellchecked against the dictionaries
in the configured dictionary directory.

Configuration comes from the environment (a .env file is loaded when
present) and the optional YAML file named by TARA_CONFIG.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringP("dictionaries", "d", "", "Dictionary directory (overrides DICTIONARY_DIR)")

	cmd.AddCommand(NewDigitizeCmd())
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewSpellcheckCmd())
	cmd.AddCommand(NewEnqueueCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewDocumentsCmd())
	cmd.AddCommand(NewDictCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and applies the global flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	if dir, _ := cmd.Flags().GetString("dictionaries"); dir != "" {
		cfg.DictionaryDir = dir
	}

	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	if err := logging.SetLevel(level); err != nil {
		return nil, err
	}
	return cfg, nil
}

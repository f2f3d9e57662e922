package cmd

import (
	"errors"
	"fmt"
	"os"

	"finscan/internal/config"
	"finscan/internal/logger"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var (
	appConfig *config.Config
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "finscan",
	Short: "finscan - classification and reconciliation of financial report PDFs",
	Long: `finscan reads Finnish and English financial report PDFs (native, scanned
or mixed), recovers their text and tables, reconciles the table of contents
with the printed page numbers, labels every page with its financial section
and runs consistency checks over the extracted figures.

Results are printed as a terminal report or written as JSON, and can be
exported to Google Sheets or compared against a golden snapshot.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetConfig hands the loaded configuration to the commands. err is reported
// by commands that need the configuration.
func SetConfig(cfg *config.Config, err error) {
	appConfig, configErr = cfg, err
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// requireConfig returns the loaded configuration or the reason it is missing
func requireConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	if configErr == nil {
		configErr = errors.New("configuration not loaded")
	}
	return nil, fmt.Errorf("invalid configuration: %w", configErr)
}

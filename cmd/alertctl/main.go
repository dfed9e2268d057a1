package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/pkg/logger"
	"github.com/frostdev-ops/rm-alert-engine/pkg/version"
)

var (
	// Flags
	configPath string
	debug      bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "alertctl",
		Short: "Operations tool for the revenue-management alert engine",
		Long: `alertctl manages the alert engine's store and configuration.

  alertctl migrate up|down|version    Manage the SQLite schema
  alertctl archive --older-than 720h  Move old resolved alerts to a .jsonl.zst file
  alertctl archive inspect FILE       Summarise an archive file
  alertctl thresholds validate [FILE] Check a thresholds file
  alertctl version                    Print build information`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newArchiveCmd(),
		newThresholdsCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger() *logrus.Logger {
	level := "warn"
	if debug {
		level = "debug"
	}
	return logger.New(logger.Options{Level: level, Format: "text"}).Logger
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/frostdev-ops/rm-alert-engine/internal/archive"
	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/database"
	"github.com/frostdev-ops/rm-alert-engine/internal/database/postgres"
)

func newArchiveCmd() *cobra.Command {
	var (
		olderThan time.Duration
		outputDir string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move old resolved alerts into a compressed archive",
		Long: `Export alerts resolved before now minus --older-than to a zstd-compressed
JSON lines file in --dir, then delete them from the store. With --dry-run the
file is written and the store is left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("failed to create archive directory: %w", err)
			}

			now := time.Now().UTC()
			path := filepath.Join(outputDir, "alerts-"+now.Format("20060102T150405Z")+archive.FileExtension)
			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create archive file: %w", err)
			}

			result, err := archive.Export(ctx, store, now.Add(-olderThan), file, dryRun, newLogger())
			if closeErr := file.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("failed to close archive file: %w", closeErr)
			}
			if err != nil {
				return err
			}

			if result.Archived == 0 {
				os.Remove(path)
			}

			if jsonOutput {
				return printJSON(struct {
					archive.Result
					File string `json:"file,omitempty"`
				}{Result: result, File: keepPath(path, result)})
			}

			if result.Archived == 0 {
				fmt.Printf("No alerts resolved before %s\n", humanize.Time(result.Cutoff))
				return nil
			}
			fmt.Printf("Archived %s alerts resolved before %s to %s (%s)\n",
				humanize.Comma(int64(result.Archived)),
				humanize.Time(result.Cutoff),
				path,
				humanize.Bytes(uint64(result.BytesWritten)))
			if dryRun {
				fmt.Println("Dry run: store left unchanged")
			} else {
				fmt.Printf("Deleted %s alerts from the store\n", humanize.Comma(int64(result.Deleted)))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "archive alerts resolved longer ago than this")
	cmd.Flags().StringVar(&outputDir, "dir", "./data/archive", "directory for archive files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write the archive without deleting alerts")

	cmd.AddCommand(newArchiveInspectCmd())
	return cmd
}

func newArchiveInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Summarise an archive file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return err
			}

			summary := struct {
				File         string         `json:"file"`
				Size         int64          `json:"size"`
				Alerts       int            `json:"alerts"`
				ByCategory   map[string]int `json:"by_category"`
				ByResolution map[string]int `json:"by_resolution"`
			}{
				File:         args[0],
				Size:         info.Size(),
				ByCategory:   make(map[string]int),
				ByResolution: make(map[string]int),
			}

			summary.Alerts, err = archive.Read(file, func(a *alerts.Alert) error {
				summary.ByCategory[a.Category]++
				summary.ByResolution[a.Resolution]++
				return nil
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(summary)
			}
			fmt.Printf("%s: %s alerts, %s\n", summary.File, humanize.Comma(int64(summary.Alerts)), humanize.Bytes(uint64(summary.Size)))
			for category, n := range summary.ByCategory {
				fmt.Printf("  %-20s %d\n", category, n)
			}
			return nil
		},
	}
}

// openStore opens the configured alert store
func openStore(ctx context.Context, cfg *config.Config) (archive.Store, func(), error) {
	if cfg.Database.Driver == "postgres" {
		pool, err := postgres.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxConnections)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewAlertRepository(pool, newLogger()), pool.Close, nil
	}

	db, err := database.Initialize(sqliteConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	repos := database.NewRepositories(db, newLogger())
	return repos.Alerts, func() { db.Close() }, nil
}

// sqliteConfig returns the SQLite settings; the local database is used for
// dedup history and samples even when alerts live in Postgres
func sqliteConfig(cfg *config.Config) config.DatabaseConfig {
	dbCfg := cfg.Database
	if dbCfg.Driver == "postgres" {
		dbCfg.Driver = "sqlite"
	}
	return dbCfg
}

func keepPath(path string, result archive.Result) string {
	if result.Archived == 0 {
		return ""
	}
	return path
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

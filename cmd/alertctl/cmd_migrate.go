package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostdev-ops/rm-alert-engine/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var (
		migrationsPath string
		steps          int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
		Long: `Apply or roll back schema migrations. Migrations compiled into the binary
are used unless --path points at a directory of *.sql files.`,
	}
	cmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "migrations directory (default: embedded)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Initialize(sqliteConfig(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db.DB, migrationsPath); err != nil {
				return err
			}
			version, _, err := database.Version(db.DB, migrationsPath)
			if err != nil {
				return err
			}
			fmt.Printf("Migrations applied, schema version %d\n", version)
			return nil
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Initialize(sqliteConfig(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.MigrateDown(db.DB, migrationsPath, steps); err != nil {
				return err
			}
			fmt.Println("Migrations rolled back successfully.")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 rolls back all)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Initialize(sqliteConfig(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			version, dirty, err := database.Version(db.DB, migrationsPath)
			if err != nil {
				return err
			}
			if dirty {
				fmt.Printf("Schema version %d (dirty)\n", version)
				return nil
			}
			fmt.Printf("Schema version %d\n", version)
			return nil
		},
	})

	return cmd
}

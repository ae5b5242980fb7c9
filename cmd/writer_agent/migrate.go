package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-writer/internal/config"
	"github.com/jonathan/content-writer/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Create the projects, artifacts, runs, sections and context tables if they do not exist.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate needs the postgres store, configured store is %q", cfg.Store)
	}

	database, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations to the configured backend.
Already applied migrations are skipped, so running the command twice is
safe.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	applied, err := store.MigrationsApplied(ctx)
	if err != nil {
		return fmt.Errorf("listing applied migrations: %w", err)
	}

	fmt.Printf("Database schema is up to date (%d migrations)\n", len(applied))
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

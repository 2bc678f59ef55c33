package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run schema migrations standalone",
	Long: `Migrate runs the schema-migration phase without the rest of the startup
sequence. Useful for one-off jobs and for inspecting migration state.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer shutdownTelemetry()

		ctx, stop := signalContext()
		defer stop()

		if err := app.migrator.Up(ctx); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer shutdownTelemetry()

		ctx, stop := signalContext()
		defer stop()

		if err := app.migrator.Down(ctx); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer shutdownTelemetry()

		ctx, stop := signalContext()
		defer stop()

		status, err := app.migrator.Status(ctx)
		if err != nil {
			return fmt.Errorf("migrate status: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			slog.Warn("encoding migration status", "err", err)
			fmt.Fprintf(os.Stdout, `{"version":%d,"dirty":%t}`+"\n", status.Version, status.Dirty)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

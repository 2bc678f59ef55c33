package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the startup sequence and exec the application server",
	Long: `Run executes the full startup sequence: wait for all dependencies,
apply pending schema migrations (unless disabled via RUN_MIGRATIONS=0),
then replace the launchpad process with the application server.

Any phase failure aborts with a non-zero exit; the server is never
started after a failed phase.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := app.sequencer.Run(ctx); err != nil {
		shutdownTelemetry()
		return err
	}

	// The exec below replaces this process, so telemetry has to flush first.
	shutdownTelemetry()
	stop()

	return app.launcher.Exec()
}

// shutdownTelemetry flushes the OTEL pipeline if it was initialised.
func shutdownTelemetry() {
	if app.otelProvider == nil {
		return
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.otelProvider.Shutdown(shutCtx); err != nil {
		slog.Warn("OTEL shutdown error", "err", err)
	}
}

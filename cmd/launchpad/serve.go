package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the startup sequence, then supervise the application server",
	Long: `Serve executes the same startup sequence as run, but keeps launchpad
alive as the parent of the application server instead of exec'ing it.

While supervising it exposes an admin HTTP API (default :8081) with
/health, /health/deep, /ready and POST /api/v1/sequence. Signals are
forwarded to the server, and its exit status becomes launchpad's own.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	defer shutdownTelemetry()

	seqCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if _, err := app.sequencer.Run(seqCtx); err != nil {
		stop()
		return err
	}
	stop()

	addr := fmt.Sprintf(":%d", cfg.Server.AdminPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	adminErr := make(chan error, 1)
	go func() {
		slog.Info("admin server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			adminErr <- err
		}
	}()

	// Supervise owns signal handling from here: it forwards SIGTERM/SIGINT
	// to the server and returns its exit status.
	code, waitErr := app.launcher.Supervise(context.Background())

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("admin server shutdown failed", "err", err)
	}

	select {
	case err := <-adminErr:
		slog.Warn("admin server error", "err", err)
	default:
	}

	if code != 0 {
		return &exitError{code: code}
	}
	if waitErr != nil {
		return fmt.Errorf("server wait: %w", waitErr)
	}

	slog.Info("server exited cleanly")
	return nil
}

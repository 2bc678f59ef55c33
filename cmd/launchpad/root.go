package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"animelens/launchpad/internal/config"
	"animelens/launchpad/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "launchpad — container startup sequencer",
	Long: `Launchpad is the container entrypoint for the anime-platform backend.
It waits for backing services (Postgres, Redis, and any optional extras),
applies pending schema migrations, and starts the application server.`,
	SilenceUsage: true,
}

// exitError carries a specific process exit status out of a subcommand, so a
// supervised server's exit code can be propagated as launchpad's own.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("server exited with status %d", e.code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel, "")

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if !cmd.Flags().Changed("log-level") && cfg.Telemetry.LogLevel != "" {
			logLevel = cfg.Telemetry.LogLevel
		}
		initLogger(logLevel, cfg.Telemetry.LogFile)

		app, err = buildAppContext(cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}

		return nil
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(waitCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// initLogger installs a JSON slog handler with trace correlation. When
// logFile is set, records are teed to it as well, so startup logs survive
// the exec handoff even if the container's stdout is not captured.
func initLogger(level, logFile string) {
	lvl := telemetry.ParseLevel(level)

	var extras []slog.Handler
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("cannot open log file, logging to stdout only", "path", logFile, "err", err)
		} else {
			extras = append(extras, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl}))
		}
	}

	slog.SetDefault(slog.New(telemetry.NewHandler(os.Stdout, lvl, extras...)))
}

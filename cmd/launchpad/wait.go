package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"animelens/launchpad/internal/sequence"

	"github.com/spf13/cobra"
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for all dependencies to become reachable, then exit",
	Long: `Wait runs only the dependency-wait phase: every configured dependency
is polled until it answers, or the overall timeout expires.

The command prints the final per-dependency results as JSON and exits 0
when everything is reachable, non-zero otherwise.`,
	RunE: runWait,
}

func runWait(cmd *cobra.Command, args []string) error {
	defer shutdownTelemetry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := app.waiter.WaitAll(ctx)
	printProbeResults(results)
	if err != nil {
		return fmt.Errorf("dependency wait: %w", err)
	}
	return nil
}

func printProbeResults(results map[string]sequence.ProbeResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		// Fallback to plain text if JSON encoding somehow fails.
		fmt.Fprintf(os.Stdout, "%v\n", results)
	}
}

package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"animelens/launchpad/internal/config"
)

// Prober is satisfied by the clients in internal/clients.
type Prober interface {
	Name() string
	Probe(ctx context.Context) ProbeResult
}

// Waiter polls a set of dependencies until every one has been reachable at
// least once, or the overall deadline expires.
type Waiter struct {
	cfg     config.WaitConfig
	probers []Prober
}

// NewWaiter constructs a Waiter over the given probers.
func NewWaiter(cfg config.WaitConfig, probers ...Prober) *Waiter {
	return &Waiter{cfg: cfg, probers: probers}
}

// ProbeAll probes every dependency once, concurrently, and returns a map of
// dependency name to ProbeResult. Used for deep health checks.
func (w *Waiter) ProbeAll(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, len(w.probers))
	var mu sync.Mutex
	var g errgroup.Group

	for _, p := range w.probers {
		p := p
		g.Go(func() error {
			probe := p.Probe(ctx)
			mu.Lock()
			results[p.Name()] = probe
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// WaitAll blocks until every dependency reports a successful probe, polling
// each one at the configured interval. Each individual probe runs under the
// connect timeout; the whole wait runs under the overall timeout. On return
// the map holds the last observed result per dependency; err is non-nil if
// any dependency never became ready.
func (w *Waiter) WaitAll(ctx context.Context) (map[string]ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.OverallTimeout)
	defer cancel()

	results := make(map[string]ProbeResult, len(w.probers))
	var mu sync.Mutex
	var g errgroup.Group

	for _, p := range w.probers {
		p := p
		g.Go(func() error {
			for attempt := 1; ; attempt++ {
				probeCtx, probeCancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
				probe := p.Probe(probeCtx)
				probeCancel()

				mu.Lock()
				results[p.Name()] = probe
				mu.Unlock()

				if probe.OK {
					slog.InfoContext(ctx, "dependency ready",
						"dependency", p.Name(), "attempts", attempt, "latency_ms", probe.LatencyMs)
					return nil
				}

				slog.DebugContext(ctx, "dependency not ready",
					"dependency", p.Name(), "attempt", attempt, "error", probe.Error)

				select {
				case <-ctx.Done():
					return fmt.Errorf("%s not ready: %s", p.Name(), probe.Error)
				case <-time.After(w.cfg.PollInterval):
				}
			}
		})
	}

	// The per-dependency errors are reconstructed from the results map so all
	// unready dependencies are reported, not just the first.
	_ = g.Wait()

	var unready []string
	for name, probe := range results {
		if !probe.OK {
			unready = append(unready, name)
		}
	}
	if len(unready) > 0 {
		sort.Strings(unready)
		return results, fmt.Errorf("dependencies not ready after %s: %s",
			w.cfg.OverallTimeout, strings.Join(unready, ", "))
	}

	return results, nil
}

package main

import (
	"context"
	"log/slog"

	"github.com/sony/gobreaker"

	"animelens/launchpad/internal/api"
	"animelens/launchpad/internal/clients"
	"animelens/launchpad/internal/config"
	"animelens/launchpad/internal/launcher"
	"animelens/launchpad/internal/migrate"
	"animelens/launchpad/internal/sequence"
	"animelens/launchpad/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE and referenced by
// run.go, serve.go, wait.go and migrate.go.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	waiter       *sequence.Waiter
	migrator     *migrate.Migrator
	sequencer    *sequence.Sequencer
	launcher     *launcher.Launcher
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates one circuit breaker per dependency client
//  3. Creates the dependency clients and the waiter over them
//  4. Creates the migrator, sequencer and launcher
//  5. Creates the admin HTTP router
func buildAppContext(cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// OTEL is best-effort: a missing collector must never block startup.
	// When OTLPEndpoint is empty, telemetry is disabled entirely — this avoids
	// the SDK's periodic-reader noise when no collector is running locally.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Info("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			context.Background(),
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed — telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	// One circuit breaker per client so each dependency trips independently.
	// The open timeout tracks the poll interval so the wait loop keeps
	// reaching a tripped dependency on every tick.
	newBreaker := func(name string) *gobreaker.CircuitBreaker {
		return clients.NewCircuitBreaker(name, cfg.Wait.PollInterval)
	}
	probers := []sequence.Prober{
		clients.NewPostgresClient(cfg.Dependencies.Postgres, newBreaker("postgres")),
		clients.NewRedisClient(cfg.Dependencies.Redis, newBreaker("redis")),
	}
	if cfg.Dependencies.NATS.URL != "" {
		probers = append(probers, clients.NewNATSClient(cfg.Dependencies.NATS, newBreaker("nats")))
	}
	for _, hc := range cfg.Dependencies.HTTP {
		probers = append(probers, clients.NewHTTPCheckClient(hc, newBreaker(hc.Name)))
	}

	app.waiter = sequence.NewWaiter(cfg.Wait, probers...)
	app.migrator = migrate.New(cfg.Migrations, cfg.Dependencies.Postgres)
	app.sequencer = sequence.New(app.waiter, app.migrator, cfg.Migrations.Enabled)
	app.launcher = launcher.New(cfg.Server)
	app.router = api.NewRouter(app.sequencer, app.launcher)

	return app, nil
}

package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"animelens/launchpad/internal/config"
	"animelens/launchpad/internal/sequence"
)

const pgProbeName = "postgres"

// dbPinger abstracts the pgxpool.Pool methods used in Probe so that tests
// can inject a fake without standing up a real database.
type dbPinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresClient wraps a pgx connection pool with a circuit breaker.
type PostgresClient struct {
	cfg     config.PostgresConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.PostgresConfig) (dbPinger, error)
}

// NewPostgresClient creates a PostgresClient that lazily opens a pgx pool on
// the first call to Probe. The circuit breaker is applied around each probe
// attempt. No connection is made at construction time.
func NewPostgresClient(cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

// Name identifies this client in wait and health output.
func (c *PostgresClient) Name() string { return pgProbeName }

// Probe pings the Postgres server and runs SELECT 1. It deliberately makes no
// schema assertions: the probe must succeed on a fresh database, before any
// migrations have been applied. The check is wrapped in the circuit breaker
// so that persistent failures trip the breaker after three consecutive errors.
func (c *PostgresClient) Probe(ctx context.Context) sequence.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		pool, err := c.connect(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var one int
		row := pool.QueryRow(ctx, "SELECT 1")
		if err := row.Scan(&one); err != nil {
			return nil, fmt.Errorf("select 1: %w", err)
		}

		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return sequence.ProbeResult{
			Name:      pgProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return sequence.ProbeResult{
		Name:      pgProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// NormalizeDSN strips async driver qualifiers (e.g. "postgresql+asyncpg://")
// that leak out of application configs written for ORM engines. pgx and
// golang-migrate both want a plain postgres:// URL.
func NormalizeDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme := dsn[:i]
		if j := strings.Index(scheme, "+"); j > 0 {
			return scheme[:j] + dsn[i:]
		}
	}
	return dsn
}

// realConnect opens a pgxpool.Pool using the provided PostgresConfig.
func realConnect(ctx context.Context, cfg config.PostgresConfig) (dbPinger, error) {
	poolCfg, err := pgxpool.ParseConfig(NormalizeDSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return pool, nil
}

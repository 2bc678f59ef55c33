package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"animelens/launchpad/internal/config"
	"animelens/launchpad/internal/sequence"
)

const natsProbeName = "nats"

// natsConn is the subset of *nats.Conn used in Probe. Defining an interface
// here allows test doubles to be injected without a live NATS server.
type natsConn interface {
	RTT() (time.Duration, error)
}

// NATSClient probes a NATS server for the wait phase and health checks.
// The dependency is optional: it is only constructed when a URL is configured.
type NATSClient struct {
	url     string
	cb      *gobreaker.CircuitBreaker
	newConn func(url string) (natsConn, func(), error)
}

// NewNATSClient constructs a NATSClient. No connection is made at construction
// time; connections are opened lazily inside Probe.
func NewNATSClient(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *NATSClient {
	return &NATSClient{
		url:     cfg.URL,
		cb:      cb,
		newConn: realNewConn,
	}
}

// Name identifies this client in wait and health output.
func (c *NATSClient) Name() string { return natsProbeName }

// Probe connects to NATS and measures a request round-trip. The entire check
// is wrapped in the circuit breaker.
func (c *NATSClient) Probe(ctx context.Context) sequence.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		nc, cleanup, err := c.newConn(c.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if _, err := nc.RTT(); err != nil {
			return nil, fmt.Errorf("rtt: %w", err)
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
			Name:      natsProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return sequence.ProbeResult{
		Name:      natsProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// realNewConn opens a real NATS connection and returns it plus a cleanup
// function that closes the connection. Connect retries are left to the wait
// loop; a single failed dial reports as a failed probe.
func realNewConn(url string) (natsConn, func(), error) {
	nc, err := nats.Connect(url, nats.Timeout(2*time.Second), nats.RetryOnFailedConnect(false))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, func() { nc.Close() }, nil
}

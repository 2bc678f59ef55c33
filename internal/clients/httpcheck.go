package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"animelens/launchpad/internal/config"
	"animelens/launchpad/internal/sequence"
)

// HTTPCheckClient probes an HTTP endpoint that must answer 2xx before the
// application server starts, with a circuit breaker around outbound calls.
type HTTPCheckClient struct {
	name   string
	url    string
	cb     *gobreaker.CircuitBreaker
	httpDo func(req *http.Request) (*http.Response, error)
}

// NewHTTPCheckClient constructs an HTTPCheckClient. No HTTP calls are made at
// construction time; they happen lazily inside Probe.
func NewHTTPCheckClient(cfg config.HTTPCheckConfig, cb *gobreaker.CircuitBreaker) *HTTPCheckClient {
	return &HTTPCheckClient{
		name:   cfg.Name,
		url:    cfg.URL,
		cb:     cb,
		httpDo: http.DefaultClient.Do,
	}
}

// Name identifies this check in wait and health output.
func (c *HTTPCheckClient) Name() string { return c.name }

// Probe issues a GET against the configured URL and requires a 2xx response.
func (c *HTTPCheckClient) Probe(ctx context.Context) sequence.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, fmt.Errorf("building probe request: %w", err)
		}

		resp, err := c.httpDo(req)
		if err != nil {
			return nil, fmt.Errorf("probe request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("probe returned HTTP %d", resp.StatusCode)
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
			Name:      c.name,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return sequence.ProbeResult{
		Name:      c.name,
		OK:        true,
		LatencyMs: latency,
	}
}

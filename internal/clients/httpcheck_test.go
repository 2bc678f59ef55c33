package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"animelens/launchpad/internal/config"
)

// stubResponse builds a minimal *http.Response with the given status code.
func stubResponse(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func makeHTTPClient(code int, doErr error, name string) *HTTPCheckClient {
	return &HTTPCheckClient{
		name: "search",
		url:  "http://search:9200/_cluster/health",
		cb:   NewCircuitBreaker(name, time.Second),
		httpDo: func(_ *http.Request) (*http.Response, error) {
			if doErr != nil {
				return nil, doErr
			}
			return stubResponse(code), nil
		},
	}
}

func TestHTTPCheckProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		code       int
		doErr      error
		wantOK     bool
		wantErrSub string
	}{
		{
			name:   "success — 200",
			code:   http.StatusOK,
			wantOK: true,
		},
		{
			name:   "success — 204",
			code:   http.StatusNoContent,
			wantOK: true,
		},
		{
			name:       "failure — 503",
			code:       http.StatusServiceUnavailable,
			wantOK:     false,
			wantErrSub: "HTTP 503",
		},
		{
			name:       "failure — 301 redirect is not ready",
			code:       http.StatusMovedPermanently,
			wantOK:     false,
			wantErrSub: "HTTP 301",
		},
		{
			name:       "failure — transport error",
			doErr:      errors.New("dial tcp: connection refused"),
			wantOK:     false,
			wantErrSub: "probe request",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := makeHTTPClient(tc.code, tc.doErr, "http-test-"+tc.name)

			result := client.Probe(context.Background())

			assert.Equal(t, "search", result.Name)
			assert.Equal(t, tc.wantOK, result.OK)
			if tc.wantErrSub != "" {
				assert.Contains(t, result.Error, tc.wantErrSub)
			}
		})
	}
}

func TestHTTPCheckClient_NameFromConfig(t *testing.T) {
	t.Parallel()

	client := NewHTTPCheckClient(config.HTTPCheckConfig{
		Name: "broker-admin",
		URL:  "http://broker:8080/admin/v2/tenants",
	}, NewCircuitBreaker("http-name-test", time.Second))

	assert.Equal(t, "broker-admin", client.Name())
}

func TestHTTPCheckCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	client := makeHTTPClient(0, errors.New("connection refused"), "http-cb-open-test")

	for i := range 3 {
		result := client.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error,
			"probe %d should not be circuit-open yet", i+1)
	}

	result := client.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
}

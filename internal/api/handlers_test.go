package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"animelens/launchpad/internal/sequence"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopLogger returns a slog.Logger that discards all output — keeps test output clean.
func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSequencer is a test double that implements sequencerService.
type fakeSequencer struct {
	startErr   error
	ready      bool
	last       *sequence.SequenceResult
	deepProbes map[string]sequence.ProbeResult
}

func (f *fakeSequencer) StartAsync(_ context.Context) error {
	return f.startErr
}

func (f *fakeSequencer) IsReady() bool {
	return f.ready
}

func (f *fakeSequencer) LastResult() *sequence.SequenceResult {
	return f.last
}

func (f *fakeSequencer) RunDeepHealth(_ context.Context) map[string]sequence.ProbeResult {
	if f.deepProbes != nil {
		return f.deepProbes
	}
	return map[string]sequence.ProbeResult{}
}

// fakeChild is a test double that implements childSupervisor.
type fakeChild struct {
	running bool
}

func (f *fakeChild) ChildRunning() bool { return f.running }

// newTestEngine builds a minimal Gin engine with only the given handler — no
// middleware — for isolated handler testing.
func newTestEngine(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

// --- Sequence handler ---

func TestSequence_202WhenNotRunning(t *testing.T) {
	t.Parallel()

	handler := &Handler{sequencer: &fakeSequencer{}, server: &fakeChild{}}
	engine := newTestEngine(http.MethodPost, "/api/v1/sequence", handler.Sequence)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sequence", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, []any{"wait", "migrate"}, body["phases"])
}

func TestSequence_409WhenInProgress(t *testing.T) {
	t.Parallel()

	fake := &fakeSequencer{startErr: sequence.ErrSequenceInProgress}
	handler := &Handler{sequencer: fake, server: &fakeChild{}}

	engine := newTestEngine(http.MethodPost, "/api/v1/sequence", handler.Sequence)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sequence", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "in-progress", body["status"])
}

// --- SequenceStatus handler ---

func TestSequenceStatus_404BeforeAnyRun(t *testing.T) {
	t.Parallel()

	handler := &Handler{sequencer: &fakeSequencer{}, server: &fakeChild{}}
	engine := newTestEngine(http.MethodGet, "/api/v1/sequence", handler.SequenceStatus)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sequence", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSequenceStatus_ReportsPhasesInOrder(t *testing.T) {
	t.Parallel()

	fake := &fakeSequencer{
		last: &sequence.SequenceResult{
			Status: sequence.StatusOK,
			Order:  []string{sequence.PhaseWait, sequence.PhaseMigrate},
			Phases: map[string]sequence.PhaseResult{
				sequence.PhaseWait:    {Name: sequence.PhaseWait, Status: sequence.StatusOK},
				sequence.PhaseMigrate: {Name: sequence.PhaseMigrate, Status: sequence.StatusOK},
			},
		},
	}
	handler := &Handler{sequencer: fake, server: &fakeChild{}}
	engine := newTestEngine(http.MethodGet, "/api/v1/sequence", handler.SequenceStatus)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sequence", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"wait", "migrate"}, body["order"])
}

// --- Health handler ---

func TestHealth_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	handler := &Handler{sequencer: &fakeSequencer{}, server: &fakeChild{}}
	engine := newTestEngine(http.MethodGet, "/health", handler.Health)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "shallow", body["mode"])
}

// --- DeepHealth handler ---

func TestDeepHealth_200WhenAllProbesOK(t *testing.T) {
	t.Parallel()

	fake := &fakeSequencer{
		deepProbes: map[string]sequence.ProbeResult{
			"postgres": {Name: "postgres", OK: true, LatencyMs: 2},
			"redis":    {Name: "redis", OK: true, LatencyMs: 1},
		},
	}
	handler := &Handler{sequencer: fake, server: &fakeChild{}}
	engine := newTestEngine(http.MethodGet, "/health/deep", handler.DeepHealth)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/deep", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotContains(t, body, "unready")

	deps, ok := body["dependencies"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, deps, 2)
}

func TestDeepHealth_503NamesUnreadyDependencies(t *testing.T) {
	t.Parallel()

	fake := &fakeSequencer{
		deepProbes: map[string]sequence.ProbeResult{
			"postgres": {Name: "postgres", OK: true, LatencyMs: 2},
			"redis":    {Name: "redis", OK: false, Error: "circuit open"},
			"nats":     {Name: "nats", OK: false, Error: "connection refused"},
		},
	}
	handler := &Handler{sequencer: fake, server: &fakeChild{}}
	engine := newTestEngine(http.MethodGet, "/health/deep", handler.DeepHealth)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/deep", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, []any{"nats", "redis"}, body["unready"])
}

// --- Ready handler ---

func TestReady_200WhenSequenceOKAndServerUp(t *testing.T) {
	t.Parallel()

	handler := &Handler{
		sequencer: &fakeSequencer{ready: true},
		server:    &fakeChild{running: true},
	}
	engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, true, body["sequence_ok"])
	assert.Equal(t, true, body["server_running"])
}

func TestReady_503BeforeSequence(t *testing.T) {
	t.Parallel()

	handler := &Handler{
		sequencer: &fakeSequencer{ready: false},
		server:    &fakeChild{running: false},
	}
	engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["ready"])
}

func TestReady_503UntilServerUp(t *testing.T) {
	t.Parallel()

	// The sequence has finished but the application server has not started
	// yet: launchpad must not advertise readiness.
	handler := &Handler{
		sequencer: &fakeSequencer{ready: true},
		server:    &fakeChild{running: false},
	}
	engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, true, body["sequence_ok"])
	assert.Equal(t, false, body["server_running"])
}

// --- Recovery middleware ---

func TestRecovery_Returns500OnPanic(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(Recovery(noopLogger()))
	engine.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "error", body["status"])
}

// --- RequestLogger middleware ---

func TestRequestLogger_SkipsConfiguredPaths(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	engine := gin.New()
	engine.Use(RequestLogger(logger, "/health"))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/ready", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Zero(t, buf.Len())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Contains(t, buf.String(), `"path":"/ready"`)
}

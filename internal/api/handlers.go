package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"animelens/launchpad/internal/sequence"

	"github.com/gin-gonic/gin"
)

// sequencerService is the subset of *sequence.Sequencer used by the HTTP
// handlers. Declaring it as an interface allows test doubles to be injected.
type sequencerService interface {
	StartAsync(ctx context.Context) error
	RunDeepHealth(ctx context.Context) map[string]sequence.ProbeResult
	IsReady() bool
	LastResult() *sequence.SequenceResult
}

// childSupervisor reports whether the supervised application server process
// is alive. Satisfied by *launcher.Launcher.
type childSupervisor interface {
	ChildRunning() bool
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	sequencer sequencerService
	server    childSupervisor
}

// Sequence handles POST /api/v1/sequence.
// StartAsync claims the single run slot atomically, so concurrent POSTs race
// on the sequencer's own state rather than on a handler-side check: exactly
// one caller gets 202, the rest get 409. The run executes in the background;
// its outcome is visible on GET /api/v1/sequence and /ready.
func (h *Handler) Sequence(c *gin.Context) {
	err := h.sequencer.StartAsync(context.Background()) //nolint:contextcheck
	if errors.Is(err, sequence.ErrSequenceInProgress) {
		c.JSON(http.StatusConflict, gin.H{"status": "in-progress"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"phases": []string{sequence.PhaseWait, sequence.PhaseMigrate},
	})
}

// SequenceStatus handles GET /api/v1/sequence.
// It reports the most recent run: overall status plus per-phase results in
// execution order. 404 before any run has started.
func (h *Handler) SequenceStatus(c *gin.Context) {
	last := h.sequencer.LastResult()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "none"})
		return
	}
	c.JSON(http.StatusOK, last)
}

// Health handles GET /health.
// It always returns 200 — this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes every configured dependency and returns 200 only when all are OK,
// naming the unready dependencies otherwise.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.sequencer.RunDeepHealth(c.Request.Context())

	var unready []string
	for name, p := range probes {
		if !p.OK {
			unready = append(unready, name)
		}
	}

	if len(unready) > 0 {
		sort.Strings(unready)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "unhealthy",
			"unready":      unready,
			"dependencies": probes,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// Readiness requires both halves of the contract: the startup sequence
// completed OK and the supervised application server is up. The body breaks
// the two out so an operator can see which half is missing.
func (h *Handler) Ready(c *gin.Context) {
	sequenceOK := h.sequencer.IsReady()
	serverUp := h.server.ChildRunning()

	body := gin.H{
		"ready":          sequenceOK && serverUp,
		"sequence_ok":    sequenceOK,
		"server_running": serverUp,
	}
	if last := h.sequencer.LastResult(); last != nil {
		body["sequence"] = last
	}

	if sequenceOK && serverUp {
		c.JSON(http.StatusOK, body)
		return
	}
	c.JSON(http.StatusServiceUnavailable, body)
}

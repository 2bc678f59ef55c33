package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
// It serves launchpad's admin surface in supervise mode: liveness, readiness,
// deep health, and re-running the startup sequence.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the full middleware chain and all routes
// registered. Middleware order:
//  1. Recovery — panic → 500
//  2. OTELTrace — trace context per request
//  3. RequestLogger — structured request/response logging; /health is exempt
//     so orchestrator liveness polling does not flood the logs
func NewRouter(s sequencerService, child childSupervisor) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(OTELTrace("launchpad"))
	engine.Use(RequestLogger(slog.Default(), "/health"))

	h := &Handler{sequencer: s, server: child}

	v1 := engine.Group("/api/v1")
	v1.POST("/sequence", h.Sequence)
	v1.GET("/sequence", h.SequenceStatus)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}

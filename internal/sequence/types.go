package sequence

import "sync"

// Phase names in execution order.
const (
	PhaseWait    = "wait"
	PhaseMigrate = "migrate"
)

// Status values used across SequenceResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// SequenceResult is the aggregate result of a full startup sequence run.
// Order records the phases as they were executed so callers can assert that
// migrations ran before the server was started.
// Callers must hold the mutex before marshalling while a run is active.
type SequenceResult struct {
	sync.Mutex
	Status string                 `json:"status"` // "ok", "error", "in-progress"
	Order  []string               `json:"order"`
	Phases map[string]PhaseResult `json:"phases"`
}

// PhaseResult represents the outcome of a single startup phase.
type PhaseResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "error", "skipped"
	Error  string `json:"error,omitempty"`
}

// ProbeResult is returned by dependency probes, both during the wait phase
// and for deep health checks.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

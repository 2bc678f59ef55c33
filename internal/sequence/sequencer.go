package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrSequenceInProgress is returned when Run is called while a startup
// sequence is already running.
var ErrSequenceInProgress = errors.New("startup sequence already in progress")

// DependencyWaiter is satisfied by *Waiter.
type DependencyWaiter interface {
	WaitAll(ctx context.Context) (map[string]ProbeResult, error)
	ProbeAll(ctx context.Context) map[string]ProbeResult
}

// SchemaMigrator is satisfied by *migrate.Migrator.
type SchemaMigrator interface {
	Up(ctx context.Context) error
}

// Sequencer runs the startup phases in order: dependency wait, then schema
// migrations. Phases are strictly sequential and fail-fast: a phase error
// prevents every later phase, and the caller must not start the application
// server unless Run returned a StatusOK result.
type Sequencer struct {
	waiter            DependencyWaiter
	migrator          SchemaMigrator
	migrationsEnabled bool

	runInProgress atomic.Bool
	lastResult    *SequenceResult
	resultMu      sync.RWMutex
}

// New constructs a Sequencer. When migrationsEnabled is false the migrate
// phase is recorded as skipped instead of executed.
func New(waiter DependencyWaiter, migrator SchemaMigrator, migrationsEnabled bool) *Sequencer {
	return &Sequencer{
		waiter:            waiter,
		migrator:          migrator,
		migrationsEnabled: migrationsEnabled,
	}
}

// Run executes the wait and migrate phases in order. The first phase failure
// aborts the run: the result records the failed phase and the error is
// returned so the process can exit non-zero. Returns ErrSequenceInProgress if
// a run is already active.
func (s *Sequencer) Run(ctx context.Context) (*SequenceResult, error) {
	if !s.runInProgress.CompareAndSwap(false, true) {
		return nil, ErrSequenceInProgress
	}
	defer s.runInProgress.Store(false)

	return s.run(ctx)
}

// StartAsync claims the single run slot and, on success, executes the
// sequence in a background goroutine. The claim itself is synchronous, so two
// concurrent callers can never both be told the run was started: exactly one
// gets nil, the rest get ErrSequenceInProgress. The run's outcome is observed
// through IsReady and LastResult.
func (s *Sequencer) StartAsync(ctx context.Context) error {
	if !s.runInProgress.CompareAndSwap(false, true) {
		return ErrSequenceInProgress
	}

	go func() {
		defer s.runInProgress.Store(false)
		// Errors are already stamped on the stored result and logged.
		_, _ = s.run(ctx)
	}()

	return nil
}

func (s *Sequencer) run(ctx context.Context) (*SequenceResult, error) {
	result := &SequenceResult{
		Status: StatusInProgress,
		Phases: make(map[string]PhaseResult),
	}

	ctx, span := otel.Tracer("launchpad").Start(ctx, "launchpad.sequence")
	defer span.End()

	slog.InfoContext(ctx, "startup sequence started", "migrations_enabled", s.migrationsEnabled)

	if err := s.runWait(ctx, result); err != nil {
		return s.finish(span, result, err)
	}

	if err := s.runMigrate(ctx, result); err != nil {
		return s.finish(span, result, err)
	}

	return s.finish(span, result, nil)
}

func (s *Sequencer) runWait(ctx context.Context, result *SequenceResult) error {
	ctx, span := otel.Tracer("launchpad").Start(ctx, "launchpad.sequence.wait")
	defer span.End()

	_, err := s.waiter.WaitAll(ctx)
	phase := PhaseResult{Name: PhaseWait, Status: StatusOK}
	if err != nil {
		phase = PhaseResult{Name: PhaseWait, Status: StatusError, Error: err.Error()}
	}
	logPhase(ctx, phase)
	recordPhase(result, phase)

	if err != nil {
		return fmt.Errorf("dependency wait: %w", err)
	}
	return nil
}

func (s *Sequencer) runMigrate(ctx context.Context, result *SequenceResult) error {
	if !s.migrationsEnabled {
		phase := PhaseResult{Name: PhaseMigrate, Status: StatusSkipped}
		slog.InfoContext(ctx, "migrations disabled, skipping")
		recordPhase(result, phase)
		return nil
	}

	ctx, span := otel.Tracer("launchpad").Start(ctx, "launchpad.sequence.migrate")
	defer span.End()

	err := s.migrator.Up(ctx)
	phase := PhaseResult{Name: PhaseMigrate, Status: StatusOK}
	if err != nil {
		phase = PhaseResult{Name: PhaseMigrate, Status: StatusError, Error: err.Error()}
	}
	logPhase(ctx, phase)
	recordPhase(result, phase)

	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// finish stamps the overall status, stores the result for readiness checks,
// and annotates the sequence span.
func (s *Sequencer) finish(span trace.Span, result *SequenceResult, err error) (*SequenceResult, error) {
	result.Lock()
	result.Status = StatusOK
	for _, phase := range result.Phases {
		if phase.Status == StatusError {
			result.Status = StatusError
			break
		}
	}
	status := result.Status
	result.Unlock()

	span.SetAttributes(attribute.String("sequence.status", status))
	if err != nil {
		span.SetStatus(codes.Error, "startup sequence failed")
		slog.Warn("startup sequence failed", "status", status, "error", err)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.Info("startup sequence completed", "status", status)
	}

	s.resultMu.Lock()
	s.lastResult = result
	s.resultMu.Unlock()

	return result, err
}

// RunDeepHealth probes all dependencies concurrently and returns a map of
// dependency name to ProbeResult.
func (s *Sequencer) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	return s.waiter.ProbeAll(ctx)
}

// IsSequenceInProgress returns true while a sequence run is active.
func (s *Sequencer) IsSequenceInProgress() bool {
	return s.runInProgress.Load()
}

// IsReady returns true if the last sequence run completed with StatusOK.
func (s *Sequencer) IsReady() bool {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	return s.lastResult != nil && s.lastResult.Status == StatusOK
}

// LastResult returns the most recent sequence result, or nil before any run.
func (s *Sequencer) LastResult() *SequenceResult {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	return s.lastResult
}

func recordPhase(result *SequenceResult, p PhaseResult) {
	result.Lock()
	result.Order = append(result.Order, p.Name)
	result.Phases[p.Name] = p
	result.Unlock()
}

// logPhase emits a trace-correlated log for a startup phase result.
// Errors log at WARN; the sequencer turns them into a fatal exit anyway.
func logPhase(ctx context.Context, p PhaseResult) {
	if p.Status == StatusOK {
		slog.InfoContext(ctx, "startup phase ok", "phase", p.Name)
		return
	}
	slog.WarnContext(ctx, "startup phase failed", "phase", p.Name, "error", p.Error)
}

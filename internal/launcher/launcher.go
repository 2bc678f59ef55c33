// Package launcher starts the application server once the startup sequence
// has completed. In exec mode the launchpad process image is replaced; in
// supervise mode the server runs as a child with signal forwarding.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"animelens/launchpad/internal/config"
)

// Launcher builds and starts the application server process.
type Launcher struct {
	cfg config.ServerConfig

	// childRunning tracks whether a supervised server process is currently
	// alive. Exec mode never sets it; after a successful exec there is no
	// launchpad process left to ask.
	childRunning atomic.Bool

	// execFn and lookPath are seams for tests; they default to syscall.Exec
	// and exec.LookPath.
	execFn   func(argv0 string, argv []string, envv []string) error
	lookPath func(file string) (string, error)
	environ  func() []string
}

// New constructs a Launcher for the configured server command.
func New(cfg config.ServerConfig) *Launcher {
	return &Launcher{
		cfg:      cfg,
		execFn:   syscall.Exec,
		lookPath: exec.LookPath,
		environ:  os.Environ,
	}
}

// Command returns the argv the server is started with. The configured args
// are extended with --host/--port so the server binds the configured
// interface and port, mirroring the container entrypoint contract.
func (l *Launcher) Command() []string {
	argv := append([]string{l.cfg.Command}, l.cfg.Args...)
	return append(argv,
		"--host", l.cfg.Host,
		"--port", strconv.Itoa(l.cfg.Port),
	)
}

// Env returns the child environment: the current environment with HOST and
// PORT set for servers that read them instead of flags.
func (l *Launcher) Env() []string {
	return append(l.environ(),
		"HOST="+l.cfg.Host,
		"PORT="+strconv.Itoa(l.cfg.Port),
	)
}

// Exec replaces the current process with the application server. On success
// it never returns; the server inherits launchpad's PID, stdio and signals.
func (l *Launcher) Exec() error {
	argv := l.Command()

	path, err := l.lookPath(argv[0])
	if err != nil {
		return fmt.Errorf("resolving server command %q: %w", argv[0], err)
	}

	slog.Info("handing off to application server", "path", path, "argv", argv)

	if err := l.execFn(path, argv, l.Env()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

// Supervise starts the server as a child process and blocks until it exits
// or ctx is cancelled. SIGTERM and SIGINT received by launchpad are forwarded
// to the child; on ctx cancellation the child gets SIGTERM. The child's exit
// code is returned so the caller can propagate it as launchpad's own status.
func (l *Launcher) Supervise(ctx context.Context) (int, error) {
	argv := l.Command()

	path, err := l.lookPath(argv[0])
	if err != nil {
		return -1, fmt.Errorf("resolving server command %q: %w", argv[0], err)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = l.Env()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("starting server: %w", err)
	}
	l.childRunning.Store(true)
	defer l.childRunning.Store(false)

	slog.Info("application server started", "path", path, "pid", cmd.Process.Pid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigCh:
			slog.Info("forwarding signal to server", "signal", sig.String())
			cmd.Process.Signal(sig) //nolint:errcheck
		case <-ctx.Done():
			slog.Info("context cancelled, stopping server")
			cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck
			err := <-done
			return exitCode(err), ctx.Err()
		case err := <-done:
			return exitCode(err), err
		}
	}
}

// ChildRunning reports whether a supervised server child is currently alive.
// The admin readiness endpoint uses it: launchpad is not ready until the
// application server it fronts is actually up.
func (l *Launcher) ChildRunning() bool {
	return l.childRunning.Load()
}

// exitCode extracts the child's exit status from cmd.Wait's error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

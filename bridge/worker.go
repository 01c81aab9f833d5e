// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/unhidra/inferd/lib/clock"
)

// DefaultStartupTimeout is how long StartWorker waits for the spawned
// sidecar to bind its socket.
const DefaultStartupTimeout = 10 * time.Second

// WorkerOptions configures StartWorker.
type WorkerOptions struct {
	// Binary is the sidecar executable. Defaults to "inferd",
	// resolved via PATH.
	Binary string

	// SocketPath is where the sidecar will bind its socket. Required.
	SocketPath string

	// ExtraArgs are appended to the sidecar command line after the
	// --socket flag (for example --log-level or --config).
	ExtraArgs []string

	// StartupTimeout bounds the wait for the socket to appear.
	// Defaults to DefaultStartupTimeout.
	StartupTimeout time.Duration

	// Logger receives lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock paces the connection retries. Defaults to the real clock.
	Clock clock.Clock
}

// Worker is a sidecar subprocess plus the connection to it. The
// subprocess's lifetime is owned by the Worker: Stop kills it and
// removes the socket file.
type Worker struct {
	cmd        *exec.Cmd
	client     *Client
	socketPath string
	logger     *slog.Logger
}

// StartWorker spawns the sidecar binary, waits for its socket, and
// connects. On any failure the subprocess is killed before returning.
func StartWorker(ctx context.Context, options WorkerOptions) (*Worker, error) {
	if options.SocketPath == "" {
		return nil, fmt.Errorf("starting worker: SocketPath is required")
	}
	if options.Binary == "" {
		options.Binary = "inferd"
	}
	if options.StartupTimeout == 0 {
		options.StartupTimeout = DefaultStartupTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}

	// Clear any leftover socket from a previous run so the retry loop
	// below cannot connect to a dead endpoint.
	if err := os.Remove(options.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", options.SocketPath, err)
	}

	args := append([]string{"--socket", options.SocketPath}, options.ExtraArgs...)
	cmd := exec.Command(options.Binary, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning %s: %w", options.Binary, err)
	}
	options.Logger.Info("sidecar spawned", "binary", options.Binary, "pid", cmd.Process.Pid)

	dialCtx, cancel := context.WithTimeout(ctx, options.StartupTimeout)
	defer cancel()
	client, err := DialRetry(dialCtx, options.SocketPath, options.Clock)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, fmt.Errorf("sidecar did not become ready: %w", err)
	}
	options.Logger.Info("connected to sidecar", "path", options.SocketPath)

	return &Worker{
		cmd:        cmd,
		client:     client,
		socketPath: options.SocketPath,
		logger:     options.Logger,
	}, nil
}

// Client returns the connection to the sidecar.
func (w *Worker) Client() *Client { return w.client }

// PID returns the sidecar's process id.
func (w *Worker) PID() int { return w.cmd.Process.Pid }

// SocketPath returns the socket path used for IPC.
func (w *Worker) SocketPath() string { return w.socketPath }

// Alive reports whether the sidecar process is still running.
func (w *Worker) Alive() bool {
	return w.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Stop shuts the sidecar down: closes the connection, asks the
// process to terminate, and removes the socket file. A process that
// ignores SIGTERM is killed.
func (w *Worker) Stop() error {
	w.logger.Info("stopping sidecar", "pid", w.cmd.Process.Pid)
	w.client.Close()

	if err := w.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		w.cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		w.cmd.Process.Kill()
		<-done
	}

	if err := os.Remove(w.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing socket %s: %w", w.socketPath, err)
	}
	return nil
}

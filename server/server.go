// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/unhidra/inferd/inference"
	"github.com/unhidra/inferd/lib/clock"
	"github.com/unhidra/inferd/wire"
)

// Options configures a Server. SocketPath and Engine are required;
// the rest default sensibly.
type Options struct {
	// SocketPath is the filesystem address of the listening endpoint.
	// The socket file is created with owner-only permissions; any
	// stale file at this path is removed before binding.
	SocketPath string

	// Engine serves the inference requests.
	Engine inference.Engine

	// Logger receives structured session and lifecycle events.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// Clock measures per-request processing time. Defaults to the
	// real clock.
	Clock clock.Clock

	// MaxPayload caps the declared length of incoming frames. A peer
	// declaring more is disconnected without a response. Defaults to
	// wire.DefaultMaxPayload.
	MaxPayload uint32

	// InferTimeout bounds a single engine invocation. Zero means no
	// timeout.
	InferTimeout time.Duration
}

// Server owns the listening endpoint and the set of active sessions.
// Construct with New; a Server is used for a single Serve call.
type Server struct {
	socketPath   string
	engine       inference.Engine
	logger       *slog.Logger
	clock        clock.Clock
	maxPayload   uint32
	inferTimeout time.Duration

	// sessions tracks in-flight connection handlers so Serve can
	// drain them before returning.
	sessions sync.WaitGroup
}

// New creates a server from options. Panics if SocketPath or Engine
// is missing — both are wiring, not runtime input.
func New(options Options) *Server {
	if options.SocketPath == "" {
		panic("server.New: SocketPath is required")
	}
	if options.Engine == nil {
		panic("server.New: Engine is required")
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.MaxPayload == 0 {
		options.MaxPayload = wire.DefaultMaxPayload
	}
	return &Server{
		socketPath:   options.SocketPath,
		engine:       options.Engine,
		logger:       options.Logger,
		clock:        options.Clock,
		maxPayload:   options.MaxPayload,
		inferTimeout: options.InferTimeout,
	}
}

// Serve binds the Unix socket and accepts connections until ctx is
// cancelled, then stops accepting, lets in-flight sessions finish
// their current request/response cycle, and removes the socket file.
//
// Any existing socket file at the configured path is removed before
// listening; the fresh socket file is restricted to the owning user.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("restricting socket permissions: %w", err)
	}

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("inference server listening",
		"path", s.socketPath,
		"max_payload_bytes", s.maxPayload,
		"pid", os.Getpid(),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		logger := s.logger
		if pid, uid, err := peerCredentials(conn); err == nil {
			logger = logger.With("peer_pid", pid, "peer_uid", uid)
		}
		logger.Info("client connected")

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.runSession(ctx, conn, logger)
		}()
	}

	s.logger.Info("draining sessions")
	s.sessions.Wait()
	s.logger.Info("server shutdown complete")
	return nil
}

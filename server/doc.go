// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the inferd sidecar endpoint: a Unix
// domain socket server speaking the length-prefixed JSON protocol
// from package wire.
//
// Each accepted connection is a session, driven by its own goroutine
// with no shared mutable state: read a frame, decode the request, run
// the engine, write the response, repeat until the peer disconnects
// or the server drains. The server stops accepting when its context
// is cancelled (cmd/inferd wires SIGINT and SIGTERM to that context)
// and Serve returns once in-flight sessions have finished.
package server

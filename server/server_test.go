// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unhidra/inferd/inference"
	"github.com/unhidra/inferd/wire"
)

// testEngine is the mock engine with a short real delay so responses
// report a positive processing time without slowing the suite down.
func testEngine() inference.Engine {
	return inference.NewMock(inference.MockOptions{Delay: 5 * time.Millisecond})
}

// startServer runs a server on a fresh socket and returns the socket
// path, a cancel function triggering graceful shutdown, and a channel
// that receives Serve's return value.
func startServer(t *testing.T, options Options) (string, context.CancelFunc, chan error) {
	t.Helper()

	if options.SocketPath == "" {
		options.SocketPath = filepath.Join(t.TempDir(), "inferd.sock")
	}
	if options.Engine == nil {
		options.Engine = testEngine()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- New(options).Serve(ctx)
	}()

	waitForSocket(t, options.SocketPath)
	return options.SocketPath, cancel, done
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s did not appear", path)
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dialing %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// sendRequest writes one framed JSON request on conn.
func sendRequest(t *testing.T, conn net.Conn, request wire.Request) {
	t.Helper()
	payload, err := wire.EncodeRequest(request)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

// readResponseFields reads one framed response and decodes it into a
// field map, so tests can assert on key absence as well as values.
func readResponseFields(t *testing.T, conn net.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	payload, err := wire.ReadFrame(conn, wire.DefaultMaxPayload)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return fields
}

func TestServeExampleScenario(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})
	conn := dial(t, socketPath)

	sendRequest(t, conn, wire.Request{Data: "hello", RequestID: json.RawMessage(`"abc123"`)})
	fields := readResponseFields(t, conn)

	if got := fields["result"]; got != "hello_ok" {
		t.Errorf("result: got %v, want hello_ok", got)
	}
	if got := fields["request_id"]; got != "abc123" {
		t.Errorf("request_id: got %v, want abc123", got)
	}
	if ms, ok := fields["processing_time_ms"].(float64); !ok || ms <= 0 {
		t.Errorf("processing_time_ms: got %v, want positive", fields["processing_time_ms"])
	}
	if _, present := fields["error"]; present {
		t.Errorf("error field must be absent on success: %v", fields)
	}
}

func TestServeOmitsUntruthyRequestID(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})
	conn := dial(t, socketPath)

	tests := []struct {
		name    string
		request wire.Request
	}{
		{name: "absent id", request: wire.Request{Data: "a"}},
		{name: "null id", request: wire.Request{Data: "b", RequestID: json.RawMessage(`null`)}},
		{name: "empty string id", request: wire.Request{Data: "c", RequestID: json.RawMessage(`""`)}},
		{name: "zero id", request: wire.Request{Data: "d", RequestID: json.RawMessage(`0`)}},
	}
	for _, test := range tests {
		sendRequest(t, conn, test.request)
		fields := readResponseFields(t, conn)
		if _, present := fields["request_id"]; present {
			t.Errorf("%s: request_id must be omitted, got %v", test.name, fields["request_id"])
		}
	}
}

func TestServeZeroLengthFrameIgnored(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})
	conn := dial(t, socketPath)

	// A zero-length frame produces no response and keeps the
	// connection open: the next real request is answered normally.
	if err := wire.WriteFrame(conn, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	sendRequest(t, conn, wire.Request{Data: "after-zero"})

	fields := readResponseFields(t, conn)
	if got := fields["result"]; got != "after-zero_ok" {
		t.Errorf("result: got %v, want after-zero_ok", got)
	}
}

func TestServeOversizedFrameClosesConnection(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})
	conn := dial(t, socketPath)

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], wire.DefaultMaxPayload+1)
	if _, err := conn.Write(prefix[:]); err != nil {
		t.Fatalf("writing oversized prefix: %v", err)
	}

	// The server must close without writing a single response byte.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 1)
	n, err := conn.Read(buffer)
	if n != 0 {
		t.Errorf("got %d response bytes, want 0", n)
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestServeMalformedRequestClosesConnection(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})
	conn := dial(t, socketPath)

	if err := wire.WriteFrame(conn, []byte("this is not json")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 1)
	n, err := conn.Read(buffer)
	if n != 0 {
		t.Errorf("got %d response bytes, want 0", n)
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestServeSequentialOrdering(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})
	conn := dial(t, socketPath)

	// Both requests are on the wire before the first response is
	// read; responses must come back in request order.
	sendRequest(t, conn, wire.Request{Data: "one", RequestID: json.RawMessage(`"r1"`)})
	sendRequest(t, conn, wire.Request{Data: "two", RequestID: json.RawMessage(`"r2"`)})

	first := readResponseFields(t, conn)
	second := readResponseFields(t, conn)
	if got := first["request_id"]; got != "r1" {
		t.Errorf("first response id: got %v, want r1", got)
	}
	if got := second["request_id"]; got != "r2" {
		t.Errorf("second response id: got %v, want r2", got)
	}
	if got := first["result"]; got != "one_ok" {
		t.Errorf("first result: got %v, want one_ok", got)
	}
}

func TestServeComputeFailureIsolation(t *testing.T) {
	t.Parallel()
	registry := inference.NewRegistry(testEngine())
	registry.Register("broken", inference.EngineFunc(
		func(ctx context.Context, data, modelID string) (string, error) {
			return "should be discarded", errors.New("weights corrupted")
		}))

	socketPath, _, _ := startServer(t, Options{Engine: registry})
	conn := dial(t, socketPath)

	sendRequest(t, conn, wire.Request{Data: "x", ModelID: "broken", RequestID: json.RawMessage(`"n"`)})
	failed := readResponseFields(t, conn)
	if got := failed["result"]; got != "" {
		t.Errorf("failed result: got %v, want empty", got)
	}
	if got, _ := failed["error"].(string); got != "weights corrupted" {
		t.Errorf("error: got %v, want weights corrupted", failed["error"])
	}

	// The failure is local to request N; request N+1 proceeds.
	sendRequest(t, conn, wire.Request{Data: "y", RequestID: json.RawMessage(`"n+1"`)})
	ok := readResponseFields(t, conn)
	if got := ok["result"]; got != "y_ok" {
		t.Errorf("follow-up result: got %v, want y_ok", got)
	}
	if _, present := ok["error"]; present {
		t.Errorf("follow-up must not carry an error: %v", ok)
	}
}

func TestServeEnginePanicIsolated(t *testing.T) {
	t.Parallel()
	engine := inference.EngineFunc(func(ctx context.Context, data, modelID string) (string, error) {
		if data == "explode" {
			panic("model state corrupted")
		}
		return data + "_ok", nil
	})
	socketPath, _, _ := startServer(t, Options{Engine: engine})
	conn := dial(t, socketPath)

	sendRequest(t, conn, wire.Request{Data: "explode"})
	failed := readResponseFields(t, conn)
	if got, _ := failed["error"].(string); got == "" {
		t.Errorf("expected error field after engine panic: %v", failed)
	}

	sendRequest(t, conn, wire.Request{Data: "calm"})
	ok := readResponseFields(t, conn)
	if got := ok["result"]; got != "calm_ok" {
		t.Errorf("result after panic: got %v, want calm_ok", got)
	}
}

func TestServeSocketPermissions(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})

	// The chmod happens just after bind; poll briefly to avoid racing it.
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, err := os.Stat(socketPath)
		if err != nil {
			t.Fatalf("stat socket: %v", err)
		}
		if info.Mode().Perm() == 0o600 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket permissions: got %o, want 600", info.Mode().Perm())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeRemovesStaleSocketFile(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(t.TempDir(), "inferd.sock")
	if err := os.WriteFile(socketPath, []byte("stale"), 0o600); err != nil {
		t.Fatalf("creating stale file: %v", err)
	}

	socketPath, _, _ = startServer(t, Options{SocketPath: socketPath})
	conn := dial(t, socketPath)
	sendRequest(t, conn, wire.Request{Data: "ping"})
	fields := readResponseFields(t, conn)
	if got := fields["result"]; got != "ping_ok" {
		t.Errorf("result: got %v, want ping_ok", got)
	}
}

func TestServeShutdownDrainsInFlightRequest(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 1)
	engine := inference.EngineFunc(func(ctx context.Context, data, modelID string) (string, error) {
		started <- struct{}{}
		time.Sleep(100 * time.Millisecond)
		return data + "_ok", nil
	})

	socketPath, cancel, done := startServer(t, Options{Engine: engine})
	conn := dial(t, socketPath)

	sendRequest(t, conn, wire.Request{Data: "slow"})
	<-started
	cancel()

	// The in-flight cycle completes: the response arrives even though
	// shutdown began mid-computation.
	fields := readResponseFields(t, conn)
	if got := fields["result"]; got != "slow_ok" {
		t.Errorf("result: got %v, want slow_ok", got)
	}

	// The session then drains and the connection closes.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 1)
	if _, err := conn.Read(buffer); !errors.Is(err, io.EOF) {
		t.Errorf("after drain: got %v, want io.EOF", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after drain")
	}
}

func TestServeShutdownStopsAccepting(t *testing.T) {
	t.Parallel()
	socketPath, cancel, done := startServer(t, Options{})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if _, err := net.Dial("unix", socketPath); err == nil {
		t.Error("dial after shutdown should fail")
	}
}

func TestServeConcurrentSessionsIsolated(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})

	connA := dial(t, socketPath)
	connB := dial(t, socketPath)

	sendRequest(t, connA, wire.Request{Data: "alpha", RequestID: json.RawMessage(`"a"`)})
	sendRequest(t, connB, wire.Request{Data: "beta", RequestID: json.RawMessage(`"b"`)})

	fieldsB := readResponseFields(t, connB)
	fieldsA := readResponseFields(t, connA)
	if got := fieldsA["result"]; got != "alpha_ok" {
		t.Errorf("session A result: got %v, want alpha_ok", got)
	}
	if got := fieldsB["result"]; got != "beta_ok" {
		t.Errorf("session B result: got %v, want beta_ok", got)
	}
	if got := fieldsA["request_id"]; got != "a" {
		t.Errorf("session A id: got %v, want a", got)
	}
	if got := fieldsB["request_id"]; got != "b" {
		t.Errorf("session B id: got %v, want b", got)
	}
}

// Frame helpers are exercised against a real connection elsewhere;
// this verifies the request bytes a session sees match what was
// framed, including multi-frame buffering.
func TestFrameBoundaryThroughBufferedWrites(t *testing.T) {
	t.Parallel()
	socketPath, _, _ := startServer(t, Options{})
	conn := dial(t, socketPath)

	// Deliver a request split across many small writes; the server
	// must still see one complete frame.
	payload, err := wire.EncodeRequest(wire.Request{Data: "split", RequestID: json.RawMessage(`"s"`)})
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	var framed bytes.Buffer
	if err := wire.WriteFrame(&framed, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	for _, b := range framed.Bytes() {
		if _, err := conn.Write([]byte{b}); err != nil {
			t.Fatalf("single-byte write: %v", err)
		}
	}

	fields := readResponseFields(t, conn)
	if got := fields["result"]; got != "split_ok" {
		t.Errorf("result: got %v, want split_ok", got)
	}
}

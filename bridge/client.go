// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/unhidra/inferd/lib/clock"
	"github.com/unhidra/inferd/wire"
)

// dialRetryInterval is how long DialRetry waits between connection
// attempts while the sidecar is still creating its socket.
const dialRetryInterval = 50 * time.Millisecond

// Client is a connection to a running inferd socket. Exchanges are
// serialized: the protocol has no multiplexing, so one request must
// be fully answered before the next is written.
//
// Client is safe for concurrent use; concurrent Infer calls queue on
// an internal mutex.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the sidecar socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// DialRetry connects to the sidecar socket, retrying while the socket
// does not exist yet. This covers the startup race between spawning
// the sidecar and it binding its socket. ctx bounds the overall wait.
func DialRetry(ctx context.Context, socketPath string, clk clock.Clock) (*Client, error) {
	if clk == nil {
		clk = clock.Real()
	}
	for {
		client, err := Dial(socketPath)
		if err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connecting to %s: %w (last attempt: %v)", socketPath, ctx.Err(), err)
		case <-clk.After(dialRetryInterval):
		}
	}
}

// Infer sends one request and waits for its response. A ctx deadline
// is applied to the connection for the duration of the exchange; on
// deadline expiry the connection is no longer frame-aligned and the
// Client must be closed.
func (c *Client) Infer(ctx context.Context, request wire.Request) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return wire.Response{}, fmt.Errorf("setting deadline: %w", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	payload, err := wire.EncodeRequest(request)
	if err != nil {
		return wire.Response{}, err
	}
	if err := wire.WriteFrame(c.conn, payload); err != nil {
		return wire.Response{}, fmt.Errorf("sending request: %w", err)
	}

	responsePayload, err := wire.ReadFrame(c.reader, wire.DefaultMaxPayload)
	if err != nil {
		return wire.Response{}, fmt.Errorf("reading response: %w", err)
	}
	return wire.DecodeResponse(responsePayload)
}

// HealthCheck sends the liveness probe request and verifies the
// sidecar answers it. Useful for monitoring and readiness probes.
func (c *Client) HealthCheck(ctx context.Context) error {
	response, err := c.Infer(ctx, wire.Request{
		Data:      "health_check",
		RequestID: []byte(`"healthcheck-probe"`),
	})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if response.Error != "" {
		return fmt.Errorf("health check failed: %s", response.Error)
	}
	if !strings.Contains(response.Result, "ok") {
		return fmt.Errorf("health check failed: unexpected result %q", response.Result)
	}
	return nil
}

// Close closes the connection. The sidecar treats this as clean
// session termination.
func (c *Client) Close() error {
	return c.conn.Close()
}

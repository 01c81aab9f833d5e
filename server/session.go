// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/unhidra/inferd/wire"
)

// session drives one accepted connection. All of its state is owned
// by the single goroutine running it; nothing here is shared across
// connections.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	logger *slog.Logger

	requestCount        int
	totalProcessingTime time.Duration
}

// runSession processes request/response cycles on conn until the peer
// disconnects, a fatal protocol error occurs, or the server drains.
// The connection is closed unconditionally on return.
func (s *Server) runSession(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	sess := &session{
		server: s,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		logger: logger,
	}
	defer func() {
		conn.Close()
		logger.Info("connection closed",
			"requests", sess.requestCount,
			"total_processing_ms", sess.totalProcessingTime.Milliseconds(),
		)
	}()

	// When shutdown begins, expire only the read side: an idle
	// session blocked waiting for the next frame wakes up and drains,
	// while a response write in flight completes normally.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			logger.Info("session draining on shutdown")
			return
		}

		payload, err := wire.ReadFrame(sess.reader, s.maxPayload)
		if err != nil {
			sess.logReadEnd(ctx, err)
			return
		}
		if len(payload) == 0 {
			logger.Debug("ignoring zero-length frame")
			continue
		}

		if err := sess.serveRequest(ctx, payload); err != nil {
			return
		}
	}
}

// serveRequest handles one decoded frame: parse, infer, respond. A
// non-nil return is fatal to the session; engine failures are not —
// they become the response's error field.
func (sess *session) serveRequest(ctx context.Context, payload []byte) error {
	request, err := wire.DecodeRequest(payload)
	if err != nil {
		sess.logger.Error("closing session on malformed request", "error", err)
		return err
	}

	sess.requestCount++
	sess.logger.Debug("request received",
		"request", sess.requestCount,
		"data_bytes", len(request.Data),
		"model", request.ModelID,
	)

	start := sess.server.clock.Now()
	result, inferErr := sess.infer(ctx, request)
	elapsed := sess.server.clock.Now().Sub(start)
	sess.totalProcessingTime += elapsed

	response := wire.Response{Result: result}
	if request.TruthyID() {
		response.RequestID = request.RequestID
	}
	if ms := elapsed.Milliseconds(); ms > 0 {
		response.ProcessingTimeMS = ms
	}
	if inferErr != nil {
		sess.logger.Warn("inference failed", "error", inferErr)
		response.Result = ""
		response.Error = inferErr.Error()
	}

	encoded, err := wire.EncodeResponse(response)
	if err != nil {
		sess.logger.Error("closing session: response encoding failed", "error", err)
		return err
	}
	if err := wire.WriteFrame(sess.writer, encoded); err != nil {
		sess.logger.Error("closing session: response write failed", "error", err)
		return err
	}
	if err := sess.writer.Flush(); err != nil {
		sess.logger.Error("closing session: response flush failed", "error", err)
		return err
	}

	sess.logger.Debug("response sent",
		"result_bytes", len(response.Result),
		"processing_ms", response.ProcessingTimeMS,
	)
	return nil
}

// infer runs the engine for one request. The engine call is detached
// from the serve context so that shutdown does not abort an in-flight
// computation — sessions drain at request boundaries. A configured
// InferTimeout still bounds the call. Engine panics are converted to
// errors so a misbehaving engine fails the request, not the process.
func (sess *session) infer(ctx context.Context, request wire.Request) (result string, err error) {
	inferCtx := context.WithoutCancel(ctx)
	if timeout := sess.server.inferTimeout; timeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(inferCtx, timeout)
		defer cancel()
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result = ""
			err = fmt.Errorf("inference panic: %v", recovered)
		}
	}()
	return sess.server.engine.Infer(inferCtx, request.Data, request.ModelID)
}

// logReadEnd classifies the error that ended the read loop. Peer
// disconnects are normal session termination; oversized frames and
// unexpected I/O errors are not.
func (sess *session) logReadEnd(ctx context.Context, err error) {
	switch {
	case errors.Is(err, wire.ErrFrameTooLarge):
		sess.logger.Warn("closing session: oversized frame", "error", err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		sess.logger.Info("peer disconnected")
	case errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil:
		sess.logger.Info("session draining on shutdown")
	case errors.Is(err, net.ErrClosed):
		sess.logger.Debug("connection closed during read")
	default:
		sess.logger.Error("closing session: read failed", "error", err)
	}
}

// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPayload is the protocol's reference payload limit. A peer
// declaring a larger frame is disconnected before any payload bytes
// are read.
const DefaultMaxPayload = 10 * 1024 * 1024

// lengthPrefixSize is the fixed size of the frame length prefix.
const lengthPrefixSize = 4

// ErrFrameTooLarge reports a declared frame length above the
// configured maximum. The caller must close the connection: the
// oversized payload is never read, so the stream position is no
// longer aligned to a frame boundary.
var ErrFrameTooLarge = errors.New("frame payload exceeds maximum size")

// ReadFrame reads one length-prefixed frame from r and returns its
// payload. A declared length of zero returns an empty payload without
// error; the caller decides whether to skip it.
//
// Stream end surfaces as io.EOF when it falls exactly on a frame
// boundary and io.ErrUnexpectedEOF when it cuts a frame short. Both
// mean the peer disconnected — a session condition, not a protocol
// error. A declared length above maxPayload returns ErrFrameTooLarge
// (wrapped with the offending sizes).
func ReadFrame(r io.Reader, maxPayload uint32) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > maxPayload {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, length, maxPayload)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame to w. Callers writing
// through a buffered writer must flush before awaiting the peer's
// reply — the frame is not on the wire until then.
func WriteFrame(w io.Writer, payload []byte) error {
	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

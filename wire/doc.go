// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the inferd IPC wire format: length-prefixed JSON
// messages over a Unix domain socket.
//
// Every message, request or response, is framed as a 4-byte big-endian
// unsigned payload length followed by exactly that many payload bytes.
// The payload is a UTF-8 JSON object. The format is shared with the
// parent-process side (package bridge), so both directions are defined
// once here rather than mirrored.
//
//   - frame.go: framing (ReadFrame, WriteFrame, payload size admission)
//   - types.go: the request/response JSON schema and its codecs
package wire

// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMalformedRequest reports a frame payload that is not a valid
// UTF-8 JSON object. The session is terminated on this error: without
// a parsed request id there is no safe way to address an error
// response back to the caller.
var ErrMalformedRequest = errors.New("malformed request")

// Request is an inference request payload. The parent process sends
// one Request per frame; each request is independent.
type Request struct {
	// Data is the inference input (text, base64-encoded audio, and so
	// on, depending on the engine). Missing on the wire decodes as "".
	Data string `json:"data"`

	// RequestID is an optional correlation id, echoed back verbatim on
	// the response when present and truthy. Carried as raw JSON because
	// callers may send either a string or a number and the echo must be
	// byte-exact.
	RequestID json.RawMessage `json:"request_id,omitempty"`

	// ModelID optionally selects which engine variant serves the
	// request in multi-model deployments.
	ModelID string `json:"model_id,omitempty"`
}

// Response is an inference response payload. Absent optional fields
// are omitted from the encoded JSON entirely, never serialized as
// null — parent-side decoders rely on this.
type Response struct {
	// Result is the inference output. Always present; empty when the
	// request failed.
	Result string `json:"result"`

	// RequestID echoes the request's id. Present iff the request
	// carried a truthy id.
	RequestID json.RawMessage `json:"request_id,omitempty"`

	// ProcessingTimeMS is the engine time in whole milliseconds.
	// Present iff greater than zero.
	ProcessingTimeMS int64 `json:"processing_time_ms,omitempty"`

	// Error describes an engine failure. Present iff the request
	// failed; Result is empty in that case.
	Error string `json:"error,omitempty"`
}

// DecodeRequest parses a frame payload into a Request. The payload
// must be a valid UTF-8 JSON object; anything else (including a bare
// JSON null, string, or array) returns ErrMalformedRequest.
func DecodeRequest(payload []byte) (Request, error) {
	if !utf8.Valid(payload) {
		return Request{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedRequest)
	}
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Request{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedRequest)
	}
	var request Request
	if err := json.Unmarshal(payload, &request); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return request, nil
}

// EncodeRequest serializes a Request for the wire. Used by the
// parent-process side (package bridge) and tests.
func EncodeRequest(request Request) ([]byte, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return payload, nil
}

// DecodeResponse parses a frame payload into a Response.
func DecodeResponse(payload []byte) (Response, error) {
	var response Response
	if err := json.Unmarshal(payload, &response); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return response, nil
}

// EncodeResponse serializes a Response for the wire, omitting absent
// optional fields.
func EncodeResponse(response Response) ([]byte, error) {
	payload, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return payload, nil
}

// TruthyID reports whether the request carries an id that should be
// echoed on the response. Absent ids, JSON null, the empty string,
// the number zero, and false do not count — matching the protocol's
// "present iff truthy" contract.
func (r Request) TruthyID() bool {
	if len(r.RequestID) == 0 {
		return false
	}
	var value any
	if err := json.Unmarshal(r.RequestID, &value); err != nil {
		return false
	}
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case float64:
		return v != 0
	case bool:
		return v
	default:
		// Ids are strings or numbers per the contract; anything else
		// that parsed as JSON is treated as present.
		return true
	}
}

// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package inference

import "context"

// Engine performs inference on request data. Implementations may
// suspend for an arbitrary duration; ctx is the only cancellation
// point the protocol layer offers. An error return becomes the
// response's error field — it fails the request, not the session.
type Engine interface {
	// Infer produces a result for the given input. modelID is empty
	// when the request did not select a model variant.
	Infer(ctx context.Context, data, modelID string) (string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, data, modelID string) (string, error)

// Infer calls f.
func (f EngineFunc) Infer(ctx context.Context, data, modelID string) (string, error) {
	return f(ctx, data, modelID)
}

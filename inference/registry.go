// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package inference

import (
	"context"
	"fmt"
)

// Registry routes requests to engines by model id. Requests without a
// model id go to the default engine. Registry itself implements
// Engine, so a server can be constructed with either a single engine
// or a routed set.
//
// Registration happens at startup before serving begins; the map is
// read-only afterwards, so no locking is needed.
type Registry struct {
	defaultEngine Engine
	engines       map[string]Engine
}

// NewRegistry creates a registry with the given default engine.
func NewRegistry(defaultEngine Engine) *Registry {
	return &Registry{
		defaultEngine: defaultEngine,
		engines:       make(map[string]Engine),
	}
}

// Register binds an engine to a model id. Panics on a duplicate id:
// that is a wiring bug, not a runtime condition.
func (r *Registry) Register(modelID string, engine Engine) {
	if _, exists := r.engines[modelID]; exists {
		panic(fmt.Sprintf("inference.Registry: duplicate engine for model %q", modelID))
	}
	r.engines[modelID] = engine
}

// Infer dispatches to the engine registered for modelID, or the
// default engine when modelID is empty. A registry with no registered
// variants routes every request to the default engine regardless of
// model id — single-model deployments ignore the field. Once variants
// are registered, an unknown model id is an inference failure: the
// session continues and the caller sees the error in the response.
func (r *Registry) Infer(ctx context.Context, data, modelID string) (string, error) {
	if modelID == "" || len(r.engines) == 0 {
		return r.defaultEngine.Infer(ctx, data, modelID)
	}
	engine, exists := r.engines[modelID]
	if !exists {
		return "", fmt.Errorf("unknown model %q", modelID)
	}
	return engine.Infer(ctx, data, modelID)
}

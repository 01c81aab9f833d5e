// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package inference

import (
	"context"
	"time"

	"github.com/unhidra/inferd/lib/clock"
)

// DefaultMockDelay is the simulated computation time of the mock
// engine.
const DefaultMockDelay = 500 * time.Millisecond

// DefaultMockSuffix is appended to the input data by the mock engine.
const DefaultMockSuffix = "_ok"

// MockOptions configures a Mock engine. Zero values select the
// defaults.
type MockOptions struct {
	// Delay is the simulated computation time per request.
	Delay time.Duration

	// Suffix is appended to the request data to form the result.
	Suffix string

	// Clock drives the delay. Tests inject a fake.
	Clock clock.Clock
}

// Mock is the placeholder engine: it waits a fixed delay and echoes
// the input with a suffix. It exists to exercise the protocol layer;
// nothing in it carries over to a real engine beyond the Engine
// contract.
type Mock struct {
	delay  time.Duration
	suffix string
	clock  clock.Clock
}

// NewMock creates a mock engine.
func NewMock(options MockOptions) *Mock {
	if options.Delay == 0 {
		options.Delay = DefaultMockDelay
	}
	if options.Suffix == "" {
		options.Suffix = DefaultMockSuffix
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	return &Mock{
		delay:  options.Delay,
		suffix: options.Suffix,
		clock:  options.Clock,
	}
}

// Infer waits the configured delay, then returns data with the
// configured suffix appended. Returns early with ctx.Err() if the
// context is cancelled during the wait.
func (m *Mock) Infer(ctx context.Context, data, modelID string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-m.clock.After(m.delay):
	}
	return data + m.suffix, nil
}

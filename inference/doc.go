// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Package inference defines the compute contract behind the inferd
// protocol layer: an Engine turns request data into a result string
// and may fail.
//
// The protocol layer treats engines as black boxes. The Mock engine is
// the reference placeholder (fixed delay, "_ok" suffix); production
// deployments plug in a real model behind the same interface. Registry
// routes multi-model deployments by request model id.
package inference

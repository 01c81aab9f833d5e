// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the parent-process side of the inferd protocol.
//
// A Client performs framed request/response exchanges against a
// running sidecar socket. A Worker goes one step further: it spawns
// the sidecar binary as a subprocess, waits for its socket to appear,
// and tears both down together. Parent processes that manage the
// sidecar lifecycle use Worker; processes connecting to an externally
// managed sidecar use Client directly.
package bridge

// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject Fake() and advance time explicitly.
package clock

// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for inferd
// binaries.
package version

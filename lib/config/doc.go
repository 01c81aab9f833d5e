// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for inferd.
//
// Configuration is loaded from a single YAML file specified by the
// INFERD_CONFIG environment variable or the --config flag. There is
// no automatic discovery: the file is the single source of truth, and
// the only processing applied is ${VAR} expansion in paths. Command
// line flags may override individual values after loading.
package config

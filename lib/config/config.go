// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unhidra/inferd/wire"
)

// Config is the inferd configuration.
type Config struct {
	// SocketPath is the filesystem address of the IPC endpoint.
	SocketPath string `yaml:"socket_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// MaxPayloadBytes caps the declared length of incoming frames.
	MaxPayloadBytes uint32 `yaml:"max_payload_bytes"`

	// Engine configures the compute side.
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig configures the inference engine.
type EngineConfig struct {
	// Delay is the mock engine's simulated computation time, as a Go
	// duration string (e.g. "500ms").
	Delay string `yaml:"delay"`

	// Suffix is the mock engine's result suffix.
	Suffix string `yaml:"suffix"`

	// InferTimeout bounds a single engine invocation, as a Go
	// duration string. Empty means no timeout.
	InferTimeout string `yaml:"infer_timeout"`
}

// Default returns the default configuration, used as a base before
// loading the config file or applying flags.
func Default() *Config {
	return &Config{
		SocketPath:      "/tmp/inferd.sock",
		LogLevel:        "info",
		MaxPayloadBytes: wire.DefaultMaxPayload,
		Engine: EngineConfig{
			Delay:  "500ms",
			Suffix: "_ok",
		},
	}
}

// Load loads configuration from the file named by the INFERD_CONFIG
// environment variable. Fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("INFERD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("INFERD_CONFIG environment variable not set; " +
			"set it to the path of your inferd.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging
// over the defaults. Environment variables do not override config
// values; the only expansion performed is ${VAR} in the socket path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.SocketPath = expandVars(cfg.SocketPath)
	return cfg, nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.SocketPath == "" {
		errs = append(errs, fmt.Errorf("socket_path is required"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxPayloadBytes == 0 {
		errs = append(errs, fmt.Errorf("max_payload_bytes must be positive"))
	}
	if _, err := c.Engine.DelayDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Engine.InferTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
}

// DelayDuration parses the mock engine delay.
func (e EngineConfig) DelayDuration() (time.Duration, error) {
	if e.Delay == "" {
		return 0, nil
	}
	delay, err := time.ParseDuration(e.Delay)
	if err != nil {
		return 0, fmt.Errorf("engine.delay: %w", err)
	}
	if delay < 0 {
		return 0, fmt.Errorf("engine.delay must not be negative")
	}
	return delay, nil
}

// InferTimeoutDuration parses the per-request engine timeout. Zero
// means no timeout.
func (e EngineConfig) InferTimeoutDuration() (time.Duration, error) {
	if e.InferTimeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(e.InferTimeout)
	if err != nil {
		return 0, fmt.Errorf("engine.infer_timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("engine.infer_timeout must not be negative")
	}
	return timeout, nil
}

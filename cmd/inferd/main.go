// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Inferd is the inference sidecar: it serves the length-prefixed JSON
// protocol on a Unix domain socket and runs inference requests from a
// parent process through the configured engine.
//
// The socket path is the only required input. It can be given as a
// flag, as the sole positional argument (matching how parent
// processes historically spawned the worker), or via a config file:
//
//	inferd --socket /run/inferd/worker.sock
//	inferd /run/inferd/worker.sock
//	INFERD_CONFIG=/etc/inferd/inferd.yaml inferd
//
// SIGINT and SIGTERM trigger graceful shutdown: the accept loop stops
// taking new connections and in-flight sessions finish their current
// request/response cycle before the process exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unhidra/inferd/inference"
	"github.com/unhidra/inferd/lib/config"
	"github.com/unhidra/inferd/lib/version"
	"github.com/unhidra/inferd/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to inferd.yaml (default: $INFERD_CONFIG if set)")
	flag.StringVar(&socketPath, "socket", "", "Unix socket path (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("inferd")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	} else if flag.NArg() > 0 {
		// Parent processes pass the socket path as the sole argument.
		cfg.SocketPath = flag.Arg(0)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	inferTimeout, err := cfg.Engine.InferTimeoutDuration()
	if err != nil {
		return err
	}

	logger.Info("starting inferd", "version", version.Info(), "socket", cfg.SocketPath)

	srv := server.New(server.Options{
		SocketPath:   cfg.SocketPath,
		Engine:       engine,
		Logger:       logger,
		MaxPayload:   cfg.MaxPayloadBytes,
		InferTimeout: inferTimeout,
	})
	return srv.Serve(ctx)
}

// loadConfig resolves the configuration source: explicit --config
// path, then INFERD_CONFIG, then built-in defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	if os.Getenv("INFERD_CONFIG") != "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

// buildEngine constructs the engine from configuration. The mock
// engine is the only built-in; real deployments register their model
// engines here.
func buildEngine(cfg *config.Config) (inference.Engine, error) {
	delay, err := cfg.Engine.DelayDuration()
	if err != nil {
		return nil, err
	}
	mock := inference.NewMock(inference.MockOptions{
		Delay:  delay,
		Suffix: cfg.Engine.Suffix,
	})
	return inference.NewRegistry(mock), nil
}

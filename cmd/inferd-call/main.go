// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

// Inferd-call is a one-shot client for the inferd socket, intended
// for debugging and scripting. It sends a single inference request
// and prints the JSON response to stdout:
//
//	inferd-call --socket /run/inferd/worker.sock "some input text"
//	inferd-call --socket /run/inferd/worker.sock --model small --id req-1 "text"
//	inferd-call --socket /run/inferd/worker.sock --health
//
// The exit code is 0 on success, 1 on transport errors, and 2 when
// the sidecar answered with an inference error.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/unhidra/inferd/bridge"
	"github.com/unhidra/inferd/lib/version"
	"github.com/unhidra/inferd/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		socketPath  string
		requestID   string
		modelID     string
		timeout     time.Duration
		health      bool
		showVersion bool
	)

	flags := pflag.NewFlagSet("inferd-call", pflag.ContinueOnError)
	flags.StringVar(&socketPath, "socket", "/tmp/inferd.sock", "Unix socket path of the sidecar")
	flags.StringVar(&requestID, "id", "", "request id to correlate the response")
	flags.StringVar(&modelID, "model", "", "model variant to run")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "overall request timeout")
	flags.BoolVar(&health, "health", false, "run a health check instead of an inference request")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if showVersion {
		version.Print("inferd-call")
		return 0
	}

	args := flags.Args()
	if !health && len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: inferd-call [flags] <data>\n")
		flags.PrintDefaults()
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := bridge.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer client.Close()

	if health {
		if err := client.HealthCheck(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		fmt.Println("ok")
		return 0
	}

	request := wire.Request{Data: args[0], ModelID: modelID}
	if requestID != "" {
		id, err := json.Marshal(requestID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		request.RequestID = id
	}

	response, err := client.Infer(ctx, request)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	encoded, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Println(string(encoded))

	if response.Error != "" {
		return 2
	}
	return 0
}

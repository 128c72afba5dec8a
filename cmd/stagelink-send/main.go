// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/stagelink/stagelink/lib/cmdfile"
	"github.com/stagelink/stagelink/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stagelink-send: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var gatewayURL string
	var apiKey string
	var timeout time.Duration
	var pollInterval time.Duration

	pflag.StringVar(&gatewayURL, "gateway", "http://localhost:8080", "gateway base URL")
	pflag.StringVar(&apiKey, "api-key", os.Getenv("STAGELINK_API_KEY"), "X-API-Key value (defaults to $STAGELINK_API_KEY)")
	pflag.DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the worker's response")
	pflag.DurationVar(&pollInterval, "poll", 500*time.Millisecond, "response poll interval")
	pflag.Parse()

	if pflag.NArg() != 1 {
		return fmt.Errorf("usage: stagelink-send [flags] <command-file.jsonc>")
	}

	command, err := cmdfile.ReadFile(pflag.Arg(0))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := worker.NewClient(worker.ClientConfig{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var header http.Header
	if apiKey != "" {
		header = make(http.Header)
		header.Set("X-API-Key", apiKey)
	}

	body, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	status, responseBody, err := client.Do(ctx, http.MethodPost, gatewayURL+"/api/v1/command", body, header)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("gateway rejected command: %d %s", status, responseBody)
	}

	var queued struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(responseBody, &queued); err != nil {
		return fmt.Errorf("decoding enqueue response: %w", err)
	}
	fmt.Fprintf(os.Stderr, "queued as %s, waiting for response...\n", queued.UUID)

	for {
		status, responseBody, err := client.Do(ctx, http.MethodGet, gatewayURL+"/api/v1/response/"+queued.UUID, nil, header)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusOK:
			fmt.Println(string(responseBody))
			return nil
		case http.StatusAccepted:
			select {
			case <-ctx.Done():
				return fmt.Errorf("no response within %v", timeout)
			case <-time.After(pollInterval):
			}
		default:
			return fmt.Errorf("reading response: %d %s", status, responseBody)
		}
	}
}

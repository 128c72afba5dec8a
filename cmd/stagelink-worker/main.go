// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/stagelink/stagelink/lib/config"
	"github.com/stagelink/stagelink/push"
	"github.com/stagelink/stagelink/relay"
	"github.com/stagelink/stagelink/worker"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "stagelink-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var debug bool

	pflag.StringVar(&configPath, "config", "", "path to stagelink.yaml (defaults to $STAGELINK_CONFIG)")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	client := worker.NewClient(worker.ClientConfig{
		Timeout:       cfg.Worker.RequestTimeout,
		RetryAttempts: cfg.Worker.RetryAttempts,
		RetryBackoff:  cfg.Worker.RetryBackoff,
		Logger:        logger,
	})
	executor := worker.NewExecutor(cfg.Worker.TargetURL, client, logger)
	poller := worker.NewPoller(worker.PollerConfig{
		GatewayURL: cfg.Worker.GatewayURL,
		APIKey:     cfg.Gateway.APIKey,
		Interval:   cfg.Worker.PollInterval,
		Executor:   executor,
		Client:     client,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting stagelink-worker",
		"gateway", cfg.Worker.GatewayURL,
		"target", cfg.Worker.TargetURL,
		"poll_interval", cfg.Worker.PollInterval,
	)

	errs := make(chan error, 3)
	running := 1
	go func() {
		errs <- poller.Run(ctx)
	}()

	if cfg.Worker.LocalListenAddress != "" {
		passthrough, err := worker.NewPassthrough(worker.PassthroughConfig{
			ListenAddress: cfg.Worker.LocalListenAddress,
			TargetURL:     cfg.Worker.TargetURL,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		running++
		go func() {
			errs <- passthrough.Serve(ctx)
		}()
	}

	if cfg.Worker.BrokerAddress != "" {
		agent := push.NewAgent(push.AgentConfig{
			BrokerAddress: cfg.Worker.BrokerAddress,
			WorkerID:      cfg.Worker.WorkerID,
			Handle:        pushHandler(executor),
			Logger:        logger,
		})
		running++
		go func() {
			errs <- agent.Run(ctx)
		}()
	}

	// The first loop to fail takes the process down; on shutdown all
	// loops return once ctx is cancelled.
	var firstErr error
	for range running {
		if err := <-errs; err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	return firstErr
}

// pushHandler maps forwarded push requests onto the executor: the
// action names the target endpoint, and a payload turns the call into
// a POST.
func pushHandler(executor *worker.Executor) push.ActionFunc {
	return func(ctx context.Context, action string, payload map[string]any) (int, string, error) {
		id, err := relay.NewID()
		if err != nil {
			return 0, "", fmt.Errorf("generating command id: %w", err)
		}
		command := relay.Command{
			ID:       id,
			Endpoint: action,
			Method:   relay.MethodGet,
			Payload:  payload,
		}
		if len(payload) > 0 {
			command.Method = relay.MethodPost
		}
		result := executor.Execute(ctx, command)
		return result.StatusCode, result.Body, nil
	}
}

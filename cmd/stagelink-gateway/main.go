// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/stagelink/stagelink/gateway"
	"github.com/stagelink/stagelink/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stagelink-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var listenAddress string
	var debug bool

	pflag.StringVar(&configPath, "config", "", "path to stagelink.yaml (defaults to $STAGELINK_CONFIG)")
	pflag.StringVar(&listenAddress, "listen", "", "override the configured listen address")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddress != "" {
		cfg.Gateway.ListenAddress = listenAddress
	}

	server := gateway.NewServer(gateway.ServerConfig{
		Address:         cfg.Gateway.ListenAddress,
		APIKey:          cfg.Gateway.APIKey,
		ResponseTTL:     cfg.Gateway.ResponseTTL,
		ShutdownTimeout: cfg.Gateway.ShutdownTimeout,
		Logger:          logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting stagelink-gateway",
		"listen", cfg.Gateway.ListenAddress,
		"environment", cfg.Environment,
		"response_ttl", cfg.Gateway.ResponseTTL,
	)
	return server.Serve(ctx)
}

// loadConfig resolves the config file from the flag or the
// STAGELINK_CONFIG environment variable.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

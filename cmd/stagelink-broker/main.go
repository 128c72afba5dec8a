// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/stagelink/stagelink/gateway"
	"github.com/stagelink/stagelink/lib/config"
	"github.com/stagelink/stagelink/push"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stagelink-broker: %v\n", err)
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

	broker := push.NewBroker(push.BrokerConfig{
		ListenAddress:  cfg.Broker.ListenAddress,
		RequestTimeout: cfg.Broker.RequestTimeout,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting stagelink-broker",
		"workers", cfg.Broker.ListenAddress,
		"http", cfg.Broker.HTTPListenAddress,
		"environment", cfg.Environment,
	)

	errs := make(chan error, 2)
	go func() {
		errs <- broker.Serve(ctx)
	}()
	go func() {
		errs <- serveHTTP(ctx, cfg, broker, logger)
	}()

	if err := <-errs; err != nil {
		return err
	}
	return <-errs
}

// serveHTTP runs the broker's HTTP API with the same API-key
// middleware the gateway uses.
func serveHTTP(ctx context.Context, cfg *config.Config, broker *push.Broker, logger *slog.Logger) error {
	handler := gateway.RequireAPIKey(cfg.Broker.APIKey, logger,
		push.NewHandler(broker, logger).Routes())

	listener, err := net.Listen("tcp", cfg.Broker.HTTPListenAddress)
	if err != nil {
		return fmt.Errorf("binding HTTP listener: %w", err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP shutdown: %w", err)
		}
		<-serveDone
		return nil
	case err := <-serveDone:
		return fmt.Errorf("HTTP listener: %w", err)
	}
}

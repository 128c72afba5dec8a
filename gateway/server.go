// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stagelink/stagelink/lib/clock"
	"github.com/stagelink/stagelink/relay"
)

// Server serves the gateway HTTP API on a TCP listener. It owns the
// command queue and response correlator and manages listener
// lifecycle, graceful shutdown, and the optional correlator sweep
// loop.
//
// Serve(ctx) blocks until the context is cancelled and active
// requests drain.
type Server struct {
	address         string
	handler         http.Handler
	queue           *relay.CommandQueue
	correlator      *relay.Correlator
	responseTTL     time.Duration
	shutdownTimeout time.Duration
	clock           clock.Clock
	logger          *slog.Logger

	// ready is closed after the listener is bound and the server is
	// accepting connections.
	ready chan struct{}

	// addr is the resolved listen address, available after ready is
	// closed. Useful when the configured address uses port 0.
	addr net.Addr
}

// ServerConfig configures a gateway Server.
type ServerConfig struct {
	// Address is the TCP listen address (e.g., ":8080"). Required.
	Address string

	// APIKey is the shared secret for the X-API-Key header. Empty
	// disables authentication.
	APIKey string

	// ResponseTTL enables correlator eviction when positive. Zero
	// (the default) disables eviction; correlator entries then live
	// for the process lifetime.
	ResponseTTL time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during graceful shutdown. Defaults to
	// 10 seconds if zero.
	ShutdownTimeout time.Duration

	// Clock drives CreatedAt stamps and the sweep loop. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewServer creates a gateway server with fresh stores. Call Serve to
// start accepting connections.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		panic("gateway.Server: Address is required")
	}
	if config.Logger == nil {
		panic("gateway.Server: Logger is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	queue := relay.NewCommandQueue(clk)
	correlator := relay.NewCorrelator(clk, config.ResponseTTL)
	handler := NewHandler(queue, correlator, config.Logger)

	return &Server{
		address:         config.Address,
		handler:         RequireAPIKey(config.APIKey, config.Logger, handler.Routes()),
		queue:           queue,
		correlator:      correlator,
		responseTTL:     config.ResponseTTL,
		shutdownTimeout: timeout,
		clock:           clk,
		logger:          config.Logger,
		ready:           make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Queue exposes the command queue for embedding callers (tests, the
// combined gateway+broker binary).
func (s *Server) Queue() *relay.CommandQueue {
	return s.queue
}

// Correlator exposes the response correlator for embedding callers.
func (s *Server) Correlator() *relay.Correlator {
	return s.correlator
}

// Serve starts accepting HTTP connections. Blocks until ctx is
// cancelled, then performs graceful shutdown: stops accepting new
// connections and waits up to ShutdownTimeout for active requests to
// complete.
func (s *Server) Serve(ctx context.Context) error {
	// Bind early so the resolved address is available and readiness
	// can be signalled before entering the serve loop.
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler: s.handler,

		// Commands are small (< 64KB body limit), so generous
		// timeouts protect against slow clients without risking
		// legitimate traffic.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("gateway listening", "address", s.addr.String())

	if s.responseTTL > 0 {
		go s.sweepLoop(ctx)
	}

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway shutting down")
	case err := <-serveDone:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("gateway shutdown error", "error", err)
		return fmt.Errorf("gateway shutdown: %w", err)
	}

	s.logger.Info("gateway stopped")
	return nil
}

// sweepLoop evicts expired correlator entries once per TTL period.
// Runs only when a positive ResponseTTL is configured.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.responseTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.correlator.Sweep(); evicted > 0 {
				s.logger.Info("evicted expired responses", "count", evicted)
			}
		}
	}
}

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// PassthroughConfig configures the local pass-through listener.
type PassthroughConfig struct {
	// ListenAddress is the local address to bind, e.g. "127.0.0.1:1026".
	ListenAddress string

	// TargetURL is the target application base URL.
	TargetURL string

	// Logger is required.
	Logger *slog.Logger
}

// Passthrough is a local HTTP listener that forwards every request
// verbatim to the target application. It gives tools on the worker's
// machine a stable local port for the target's API without routing
// through the gateway.
type Passthrough struct {
	listenAddress string
	proxy         *httputil.ReverseProxy
	logger        *slog.Logger

	ready chan struct{}
	addr  net.Addr
}

// NewPassthrough creates the listener. It panics if a required field
// is missing and returns an error only for an unparseable target URL.
func NewPassthrough(cfg PassthroughConfig) (*Passthrough, error) {
	if cfg.ListenAddress == "" {
		panic("PassthroughConfig.ListenAddress is required")
	}
	if cfg.Logger == nil {
		panic("PassthroughConfig.Logger is required")
	}
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parsing target URL: %w", err)
	}

	logger := cfg.Logger
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("pass-through request failed", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	return &Passthrough{
		listenAddress: cfg.ListenAddress,
		proxy:         proxy,
		logger:        logger,
		ready:         make(chan struct{}),
	}, nil
}

// Ready is closed once the listener is bound.
func (p *Passthrough) Ready() <-chan struct{} { return p.ready }

// Addr returns the bound address. Valid after Ready is closed.
func (p *Passthrough) Addr() net.Addr { return p.addr }

// Serve binds the listener and forwards requests until ctx is
// cancelled.
func (p *Passthrough) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", p.listenAddress)
	if err != nil {
		return fmt.Errorf("binding pass-through listener: %w", err)
	}
	p.addr = listener.Addr()
	close(p.ready)
	p.logger.Info("pass-through listener bound", "address", p.addr.String())

	server := &http.Server{
		Handler:           p.proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("pass-through shutdown: %w", err)
		}
		<-serveDone
		return nil
	case err := <-serveDone:
		return fmt.Errorf("pass-through listener: %w", err)
	}
}

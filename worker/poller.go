// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stagelink/stagelink/lib/clock"
	"github.com/stagelink/stagelink/relay"
)

// PollerConfig configures a Poller. GatewayURL and Executor are
// required.
type PollerConfig struct {
	// GatewayURL is the base URL of the gateway, e.g.
	// "https://relay.example.com".
	GatewayURL string

	// APIKey is sent as X-API-Key on every gateway request. Empty means
	// the gateway runs without authentication.
	APIKey string

	// Interval between drain polls. Defaults to 5 seconds.
	Interval time.Duration

	// Executor runs drained commands against the target.
	Executor *Executor

	// Client performs the gateway HTTP calls.
	Client *Client

	// Clock drives the poll ticker. Defaults to the real clock.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Poller drains the gateway command queue on a fixed interval and
// executes each batch sequentially against the target.
type Poller struct {
	gatewayURL string
	apiKey     string
	interval   time.Duration
	executor   *Executor
	client     *Client
	clock      clock.Clock
	logger     *slog.Logger
}

// NewPoller creates a poller. It panics if a required field is missing.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.GatewayURL == "" {
		panic("PollerConfig.GatewayURL is required")
	}
	if cfg.Executor == nil {
		panic("PollerConfig.Executor is required")
	}
	if cfg.Client == nil {
		panic("PollerConfig.Client is required")
	}
	if cfg.Logger == nil {
		panic("PollerConfig.Logger is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Poller{
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		apiKey:     cfg.APIKey,
		interval:   cfg.Interval,
		executor:   cfg.Executor,
		client:     cfg.Client,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Run polls until ctx is cancelled. A failed poll or a failed status
// report is logged and the loop continues; the worker never escalates
// a transient gateway outage into an exit.
func (p *Poller) Run(ctx context.Context) error {
	if version, err := p.executor.ProbeVersion(ctx); err != nil {
		p.logger.Warn("target not reachable at startup", "error", err)
	} else {
		p.logger.Info("target online", "version", version)
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce drains the gateway queue and executes the batch in order.
func (p *Poller) pollOnce(ctx context.Context) {
	commands, err := p.fetchCommands(ctx)
	if err != nil {
		p.logger.Warn("polling gateway failed", "error", err)
		return
	}
	if len(commands) == 0 {
		return
	}
	p.logger.Info("drained command batch", "count", len(commands))
	for _, command := range commands {
		result := p.executor.Execute(ctx, command)
		if err := p.reportStatus(ctx, command.ID, result); err != nil {
			p.logger.Warn("reporting status failed", "id", command.ID, "error", err)
		}
	}
}

func (p *Poller) fetchCommands(ctx context.Context) ([]relay.Command, error) {
	status, body, err := p.client.Do(ctx, http.MethodGet, p.gatewayURL+"/api/v1/commands", nil, p.header())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("gateway drain returned %d", status)
	}
	var commands []relay.Command
	if err := json.Unmarshal(body, &commands); err != nil {
		return nil, fmt.Errorf("decoding command batch: %w", err)
	}
	return commands, nil
}

// reportStatus pushes one execution result back to the gateway so the
// originating client can read it by command ID.
func (p *Poller) reportStatus(ctx context.Context, commandID string, result Result) error {
	payload, err := json.Marshal(map[string]any{
		"command":     map[string]string{"id": commandID},
		"status_code": result.StatusCode,
		"response":    result.Body,
	})
	if err != nil {
		return fmt.Errorf("encoding status report: %w", err)
	}
	status, _, err := p.client.Do(ctx, http.MethodPost, p.gatewayURL+"/api/v1/status", payload, p.header())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("gateway status report returned %d", status)
	}
	return nil
}

func (p *Poller) header() http.Header {
	if p.apiKey == "" {
		return nil
	}
	header := make(http.Header)
	header.Set("X-API-Key", p.apiKey)
	return header
}

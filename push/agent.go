// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/stagelink/stagelink/lib/clock"
)

// ActionFunc handles one forwarded request on the worker side. It
// returns the status code and body to send back; a non-nil error is
// reported in the reply's error field alongside a 500.
type ActionFunc func(ctx context.Context, action string, payload map[string]any) (int, string, error)

// AgentConfig configures an Agent. BrokerAddress, WorkerID, Handle,
// and Logger are required.
type AgentConfig struct {
	// BrokerAddress is the broker's worker listener, host:port.
	BrokerAddress string

	// WorkerID is announced in the hello message.
	WorkerID string

	// Handle executes forwarded requests.
	Handle ActionFunc

	// DialTimeout bounds each connection attempt. Defaults to
	// 5 seconds.
	DialTimeout time.Duration

	// Clock drives the reconnect backoff. Defaults to the real clock.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Agent is the worker side of the push transport. It keeps one
// connection to the broker alive, executing forwarded requests as
// they arrive and reconnecting with backoff after a disconnect.
type Agent struct {
	brokerAddress string
	workerID      string
	handle        ActionFunc
	dialTimeout   time.Duration
	clock         clock.Clock
	logger        *slog.Logger
}

// NewAgent creates an agent. It panics if a required field is missing.
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.BrokerAddress == "" {
		panic("AgentConfig.BrokerAddress is required")
	}
	if cfg.WorkerID == "" {
		panic("AgentConfig.WorkerID is required")
	}
	if cfg.Handle == nil {
		panic("AgentConfig.Handle is required")
	}
	if cfg.Logger == nil {
		panic("AgentConfig.Logger is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Agent{
		brokerAddress: cfg.BrokerAddress,
		workerID:      cfg.WorkerID,
		handle:        cfg.Handle,
		dialTimeout:   cfg.DialTimeout,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}
}

// Run connects to the broker and serves forwarded requests until ctx
// is cancelled. Connection failures back off exponentially from one
// second to a thirty second cap; a successful session resets the
// backoff.
func (a *Agent) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			a.logger.Warn("broker session ended", "error", err, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session runs one connection lifecycle: dial, hello, then serve
// requests until the connection drops.
func (a *Agent) session(ctx context.Context) error {
	dialer := net.Dialer{Timeout: a.dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", a.brokerAddress)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	conn := NewConn(raw)
	defer conn.Close()

	// Unblock the read loop when ctx is cancelled mid-session.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	hello := Message{Type: TypeHello, Hello: &Hello{WorkerID: a.workerID}}
	if err := conn.Write(hello); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}
	a.logger.Info("connected to broker", "broker", a.brokerAddress, "worker", a.workerID)

	for {
		message, err := conn.Read()
		if err != nil {
			return fmt.Errorf("reading from broker: %w", err)
		}
		if message.Type != TypeRequest {
			a.logger.Warn("unexpected message from broker", "type", message.Type)
			continue
		}
		// Requests run concurrently so a slow action does not block
		// the channel.
		go a.serveRequest(ctx, conn, *message.Request)
	}
}

func (a *Agent) serveRequest(ctx context.Context, conn *Conn, request Request) {
	status, body, err := a.handle(ctx, request.Action, request.Payload)
	reply := Reply{
		RequestID:  request.RequestID,
		WorkerID:   a.workerID,
		StatusCode: status,
		Body:       body,
	}
	if err != nil {
		reply.StatusCode = 500
		reply.Error = err.Error()
		a.logger.Error("action failed", "action", request.Action, "request", request.RequestID, "error", err)
	}
	if writeErr := conn.Write(Message{Type: TypeReply, Reply: &reply}); writeErr != nil {
		a.logger.Warn("sending reply failed", "request", request.RequestID, "error", writeErr)
	}
}

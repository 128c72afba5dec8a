// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/stagelink/stagelink/lib/clock"
	"github.com/stagelink/stagelink/relay"
)

// ErrReplyTimeout indicates that a forwarded request got no reply
// within the broker's request timeout. The pending entry is removed;
// a reply arriving later is dropped as unknown.
var ErrReplyTimeout = errors.New("timed out waiting for worker reply")

// BrokerConfig configures a Broker. ListenAddress and Logger are
// required.
type BrokerConfig struct {
	// ListenAddress is the TCP address workers connect to.
	ListenAddress string

	// RequestTimeout bounds how long Forward waits for a reply.
	// Defaults to 10 seconds.
	RequestTimeout time.Duration

	// Clock drives the reply timeout. Defaults to the real clock.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Broker accepts persistent worker connections, forwards requests to
// a worker by id, and routes each asynchronous reply back to the
// goroutine that forwarded the request.
type Broker struct {
	listenAddress  string
	requestTimeout time.Duration
	registry       *Registry
	clock          clock.Clock
	logger         *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	ready chan struct{}
	addr  net.Addr
}

// pendingRequest correlates an in-flight forward with its reply. The
// entry is single use: the first matching reply consumes it.
type pendingRequest struct {
	workerID string
	reply    chan Reply
}

// NewBroker creates a broker. It panics if a required field is
// missing.
func NewBroker(cfg BrokerConfig) *Broker {
	if cfg.ListenAddress == "" {
		panic("BrokerConfig.ListenAddress is required")
	}
	if cfg.Logger == nil {
		panic("BrokerConfig.Logger is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Broker{
		listenAddress:  cfg.ListenAddress,
		requestTimeout: cfg.RequestTimeout,
		registry:       NewRegistry(),
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		pending:        make(map[string]*pendingRequest),
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the worker listener is bound.
func (b *Broker) Ready() <-chan struct{} { return b.ready }

// Addr returns the bound listener address. Valid after Ready is
// closed.
func (b *Broker) Addr() net.Addr { return b.addr }

// Registry exposes the connected-worker registry.
func (b *Broker) Registry() *Registry { return b.registry }

// Serve accepts worker connections until ctx is cancelled.
func (b *Broker) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", b.listenAddress)
	if err != nil {
		return fmt.Errorf("binding worker listener: %w", err)
	}
	b.addr = listener.Addr()
	close(b.ready)
	b.logger.Info("broker listening for workers", "address", b.addr.String())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting worker connection: %w", err)
		}
		go b.handleConn(NewConn(raw))
	}
}

// handleConn owns one worker connection: it reads the hello,
// registers the worker, then pumps replies into the pending table
// until the connection drops.
func (b *Broker) handleConn(conn *Conn) {
	defer conn.Close()

	message, err := conn.Read()
	if err != nil {
		b.logger.Warn("connection dropped before hello", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	if message.Type != TypeHello {
		b.logger.Warn("first message was not hello", "remote", conn.RemoteAddr(), "type", message.Type)
		return
	}
	workerID := message.Hello.WorkerID
	if workerID == "" {
		b.logger.Warn("hello with empty worker id", "remote", conn.RemoteAddr())
		return
	}

	if displaced := b.registry.Register(workerID, conn); displaced != nil {
		b.logger.Info("worker re-registered, closing previous connection", "worker", workerID)
		displaced.Close()
	}
	defer b.registry.UnregisterConn(conn)
	b.logger.Info("worker connected", "worker", workerID, "remote", conn.RemoteAddr())

	for {
		message, err := conn.Read()
		if err != nil {
			b.logger.Info("worker disconnected", "worker", workerID, "error", err)
			return
		}
		if message.Type != TypeReply {
			b.logger.Warn("unexpected message from worker, dropping connection",
				"worker", workerID, "type", message.Type)
			return
		}
		if err := b.deliverReply(workerID, *message.Reply); err != nil {
			b.logger.Warn("reply not delivered",
				"worker", workerID, "request", message.Reply.RequestID, "error", err)
		}
	}
}

// Forward pushes a request to the given worker and waits for its
// reply. Returns ErrWorkerNotConnected when the id has no live
// connection and ErrReplyTimeout when no reply arrives in time.
func (b *Broker) Forward(ctx context.Context, workerID, action string, payload map[string]any) (Reply, error) {
	conn := b.registry.Lookup(workerID)
	if conn == nil {
		return Reply{}, fmt.Errorf("forwarding to %q: %w", workerID, ErrWorkerNotConnected)
	}

	requestID, err := relay.NewID()
	if err != nil {
		return Reply{}, fmt.Errorf("generating request id: %w", err)
	}
	entry := &pendingRequest{workerID: workerID, reply: make(chan Reply, 1)}
	b.pendingMu.Lock()
	b.pending[requestID] = entry
	b.pendingMu.Unlock()

	message := Message{
		Type: TypeRequest,
		Request: &Request{
			RequestID: requestID,
			Action:    action,
			Payload:   payload,
		},
	}
	if err := conn.Write(message); err != nil {
		b.removePending(requestID)
		return Reply{}, fmt.Errorf("writing request to %q: %w", workerID, err)
	}
	b.logger.Debug("request forwarded", "worker", workerID, "request", requestID, "action", action)

	select {
	case reply := <-entry.reply:
		return reply, nil
	case <-b.clock.After(b.requestTimeout):
		b.removePending(requestID)
		return Reply{}, fmt.Errorf("request %s to %q: %w", requestID, workerID, ErrReplyTimeout)
	case <-ctx.Done():
		b.removePending(requestID)
		return Reply{}, ctx.Err()
	}
}

// deliverReply routes one reply to its waiting forwarder. The sender
// is the hello identity of the connection the reply arrived on; it
// must match the worker the request was forwarded to, otherwise the
// delivery is rejected and the entry stays live for the genuine
// worker.
func (b *Broker) deliverReply(senderWorkerID string, reply Reply) error {
	b.pendingMu.Lock()
	entry, ok := b.pending[reply.RequestID]
	if !ok {
		b.pendingMu.Unlock()
		return fmt.Errorf("reply %s: %w", reply.RequestID, ErrUnknownRequest)
	}
	if entry.workerID != senderWorkerID {
		b.pendingMu.Unlock()
		return fmt.Errorf("reply %s from %q, request was forwarded to %q: %w",
			reply.RequestID, senderWorkerID, entry.workerID, ErrSenderMismatch)
	}
	delete(b.pending, reply.RequestID)
	b.pendingMu.Unlock()

	entry.reply <- reply
	return nil
}

func (b *Broker) removePending(requestID string) {
	b.pendingMu.Lock()
	delete(b.pending, requestID)
	b.pendingMu.Unlock()
}

// PendingCount reports the number of in-flight forwards, for tests.
func (b *Broker) PendingCount() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

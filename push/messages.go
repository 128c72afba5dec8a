// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import "fmt"

// MessageType discriminates the messages on a push channel. Every
// frame is a Message envelope carrying exactly one typed body.
type MessageType string

const (
	// TypeHello is the first message on every connection,
	// worker to broker. It names the worker.
	TypeHello MessageType = "hello"

	// TypeRequest is a forwarded request, broker to worker.
	TypeRequest MessageType = "request"

	// TypeReply is an asynchronous reply, worker to broker.
	TypeReply MessageType = "reply"
)

// Message is the envelope for all push channel frames. Exactly one of
// the body pointers is set, matching Type.
type Message struct {
	Type    MessageType `cbor:"type"`
	Hello   *Hello      `cbor:"hello,omitempty"`
	Request *Request    `cbor:"request,omitempty"`
	Reply   *Reply      `cbor:"reply,omitempty"`
}

// Hello announces the worker's identity. Sent once, immediately after
// connecting. A second hello on the same connection is a protocol
// error.
type Hello struct {
	WorkerID string `cbor:"worker_id"`
}

// Request asks a worker to perform an action. The broker assigns
// RequestID and records it in the pending table before writing the
// frame.
type Request struct {
	RequestID string         `cbor:"request_id"`
	Action    string         `cbor:"action"`
	Payload   map[string]any `cbor:"payload,omitempty"`
}

// Reply carries the outcome of a Request back to the broker. WorkerID
// repeats the sender's identity so the broker can verify it against
// the request's original target.
type Reply struct {
	RequestID  string `cbor:"request_id"`
	WorkerID   string `cbor:"worker_id"`
	StatusCode int    `cbor:"status_code"`
	Body       string `cbor:"body,omitempty"`
	Error      string `cbor:"error,omitempty"`
}

// Validate checks that the envelope carries the body its type names
// and no other.
func (m *Message) Validate() error {
	bodies := 0
	if m.Hello != nil {
		bodies++
	}
	if m.Request != nil {
		bodies++
	}
	if m.Reply != nil {
		bodies++
	}
	if bodies != 1 {
		return fmt.Errorf("message carries %d bodies, want exactly 1", bodies)
	}
	switch m.Type {
	case TypeHello:
		if m.Hello == nil {
			return fmt.Errorf("hello message without hello body")
		}
	case TypeRequest:
		if m.Request == nil {
			return fmt.Errorf("request message without request body")
		}
	case TypeReply:
		if m.Reply == nil {
			return fmt.Errorf("reply message without reply body")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

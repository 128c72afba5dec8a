// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"net"
	"testing"
	"time"

	"github.com/stagelink/stagelink/lib/testutil"
)

func connPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	clientRaw, serverRaw := net.Pipe()
	t.Cleanup(func() {
		clientRaw.Close()
		serverRaw.Close()
	})
	return NewConn(clientRaw), NewConn(serverRaw)
}

func TestConnRoundTrip(t *testing.T) {
	client, server := connPair(t)

	received := make(chan Message, 1)
	readErr := make(chan error, 1)
	go func() {
		message, err := server.Read()
		if err != nil {
			readErr <- err
			return
		}
		received <- message
	}()

	sent := Message{
		Type: TypeRequest,
		Request: &Request{
			RequestID: "r1",
			Action:    "get_version",
			Payload:   map[string]any{"detail": "full"},
		},
	}
	if err := client.Write(sent); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case err := <-readErr:
		t.Fatalf("Read: %v", err)
	case message := <-received:
		if message.Type != TypeRequest {
			t.Fatalf("Type = %q, want request", message.Type)
		}
		if message.Request.RequestID != "r1" || message.Request.Action != "get_version" {
			t.Errorf("Request = %+v", message.Request)
		}
		if message.Request.Payload["detail"] != "full" {
			t.Errorf("Payload = %v, want detail=full", message.Request.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestConnWriteRejectsInvalidEnvelope(t *testing.T) {
	client, _ := connPair(t)

	t.Run("no body", func(t *testing.T) {
		if err := client.Write(Message{Type: TypeHello}); err == nil {
			t.Error("Write accepted an envelope with no body")
		}
	})
	t.Run("body type mismatch", func(t *testing.T) {
		err := client.Write(Message{Type: TypeHello, Reply: &Reply{RequestID: "r1"}})
		if err == nil {
			t.Error("Write accepted a hello envelope carrying a reply body")
		}
	})
	t.Run("two bodies", func(t *testing.T) {
		err := client.Write(Message{
			Type:  TypeHello,
			Hello: &Hello{WorkerID: "w1"},
			Reply: &Reply{RequestID: "r1"},
		})
		if err == nil {
			t.Error("Write accepted an envelope with two bodies")
		}
	})
}

func TestConnReadValidatesEnvelope(t *testing.T) {
	client, server := connPair(t)

	readErr := make(chan error, 1)
	go func() {
		_, err := server.Read()
		readErr <- err
	}()

	// Bypass Write's validation by encoding the frame directly.
	go func() {
		client.writeMu.Lock()
		defer client.writeMu.Unlock()
		client.encoder.Encode(Message{Type: "bogus"})
	}()

	if err := testutil.RequireReceive(t, readErr, 5*time.Second, "read result"); err == nil {
		t.Error("Read accepted a message with an unknown type")
	}
}

func TestConnConcurrentWrites(t *testing.T) {
	client, server := connPair(t)

	const writers = 8
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range writers {
			message, err := server.Read()
			if err != nil {
				t.Errorf("Read: %v", err)
				return
			}
			if message.Type != TypeReply {
				t.Errorf("Type = %q, want reply", message.Type)
				return
			}
		}
	}()

	for i := range writers {
		go func() {
			reply := Reply{RequestID: "r1", WorkerID: "w1", StatusCode: 200 + i}
			if err := client.Write(Message{Type: TypeReply, Reply: &reply}); err != nil {
				t.Errorf("Write: %v", err)
			}
		}()
	}

	testutil.RequireClosed(t, done, 5*time.Second, "all messages read intact")
}

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"fmt"
	"net"
	"sync"

	"github.com/stagelink/stagelink/lib/codec"
)

// Conn is a push channel: a CBOR message stream over a net.Conn.
// Writes are serialized by an internal mutex so multiple goroutines
// (the broker's forward path and its read loop) can share one
// connection. Reads must come from a single goroutine.
type Conn struct {
	raw     net.Conn
	decoder *codec.Decoder

	writeMu sync.Mutex
	encoder *codec.Encoder
}

// NewConn wraps a network connection in a push channel.
func NewConn(raw net.Conn) *Conn {
	return &Conn{
		raw:     raw,
		decoder: codec.NewDecoder(raw),
		encoder: codec.NewEncoder(raw),
	}
}

// Read blocks until the next message arrives, then validates its
// envelope. An invalid envelope is returned as an error so the caller
// can drop the connection.
func (c *Conn) Read() (Message, error) {
	var message Message
	if err := c.decoder.Decode(&message); err != nil {
		return Message{}, err
	}
	if err := message.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid message from %s: %w", c.RemoteAddr(), err)
	}
	return message, nil
}

// Write encodes one message onto the channel.
func (c *Conn) Write(message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.encoder.Encode(message)
}

// Close closes the underlying connection. Pending Read calls return
// with an error.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr reports the peer's network address, for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

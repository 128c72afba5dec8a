// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Method is the HTTP method a command uses against the local target.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// EndpointTrigger is the specialized message-trigger endpoint on the
// target application. Trigger commands carry a structured payload
// validated by TriggerPayload before any request is sent.
const EndpointTrigger = "trigger"

// Command is a unit of work submitted for later execution against the
// local target. The id is assigned by the queue at enqueue time, never
// by the caller.
type Command struct {
	// ID is the opaque correlation token assigned by the queue.
	ID string `json:"id,omitempty"`

	// Endpoint is the target API endpoint (e.g. "trigger",
	// "version"). Required.
	Endpoint string `json:"endpoint"`

	// Method is GET or POST. Empty defaults to GET at validation.
	Method Method `json:"method,omitempty"`

	// Payload carries endpoint-specific fields. For trigger commands
	// the required fields are messageID, messageToken, and
	// messageContent.
	Payload map[string]any `json:"payload,omitempty"`

	// CreatedAt is set by the queue when the command is enqueued.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Validate checks that the command is well formed and normalizes the
// method (empty becomes GET). Returns ErrInvalidFormat with detail on
// failure. Validation happens once at the gateway boundary; the worker
// trusts drained commands.
func (c *Command) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: missing endpoint", ErrInvalidFormat)
	}
	switch c.Method {
	case "":
		c.Method = MethodGet
	case MethodGet, MethodPost:
	default:
		return fmt.Errorf("%w: method %q (want GET or POST)", ErrInvalidFormat, c.Method)
	}
	return nil
}

// TriggerPayload is the structured payload of a trigger command. All
// three fields must be non-empty.
type TriggerPayload struct {
	MessageID      string
	MessageToken   string
	MessageContent string
}

// TriggerPayload extracts and validates the trigger fields from the
// command's payload. Returns ErrInvalidFormat if any required field is
// missing or empty.
func (c *Command) TriggerPayload() (TriggerPayload, error) {
	payload := TriggerPayload{
		MessageID:      stringField(c.Payload, "messageID"),
		MessageToken:   stringField(c.Payload, "messageToken"),
		MessageContent: stringField(c.Payload, "messageContent"),
	}
	if payload.MessageID == "" || payload.MessageToken == "" || payload.MessageContent == "" {
		return TriggerPayload{}, fmt.Errorf("%w: trigger requires messageID, messageToken, and messageContent", ErrInvalidFormat)
	}
	return payload, nil
}

func stringField(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}

// Response is the outcome of executing a command, reported back by
// the worker and stored by the correlator under the command id.
type Response struct {
	CommandID  string    `json:"command_id"`
	StatusCode int       `json:"status_code"`
	Body       string    `json:"response"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewID creates a random 16-byte hex token for command and request
// correlation. Uses crypto/rand for uniqueness without external
// dependencies.
func NewID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}

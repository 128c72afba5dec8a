// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"testing"
)

func TestCommandValidate(t *testing.T) {
	t.Run("defaults_method_to_get", func(t *testing.T) {
		command := Command{Endpoint: "version"}
		if err := command.Validate(); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if command.Method != MethodGet {
			t.Errorf("method = %q, want GET", command.Method)
		}
	})

	t.Run("accepts_post", func(t *testing.T) {
		command := Command{Endpoint: "trigger", Method: MethodPost}
		if err := command.Validate(); err != nil {
			t.Errorf("Validate() error: %v", err)
		}
	})

	t.Run("rejects_missing_endpoint", func(t *testing.T) {
		command := Command{}
		if err := command.Validate(); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Validate() error = %v, want ErrInvalidFormat", err)
		}
	})

	t.Run("rejects_unknown_method", func(t *testing.T) {
		command := Command{Endpoint: "version", Method: "DELETE"}
		if err := command.Validate(); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Validate() error = %v, want ErrInvalidFormat", err)
		}
	})
}

func TestTriggerPayload(t *testing.T) {
	t.Run("extracts_all_fields", func(t *testing.T) {
		command := Command{
			Endpoint: EndpointTrigger,
			Payload: map[string]any{
				"messageID":      "m1",
				"messageToken":   "t1",
				"messageContent": "hi",
			},
		}
		payload, err := command.TriggerPayload()
		if err != nil {
			t.Fatalf("TriggerPayload() error: %v", err)
		}
		want := TriggerPayload{MessageID: "m1", MessageToken: "t1", MessageContent: "hi"}
		if payload != want {
			t.Errorf("payload = %+v, want %+v", payload, want)
		}
	})

	missing := map[string]map[string]any{
		"missing_id":      {"messageToken": "t1", "messageContent": "hi"},
		"missing_token":   {"messageID": "m1", "messageContent": "hi"},
		"missing_content": {"messageID": "m1", "messageToken": "t1"},
		"empty_content":   {"messageID": "m1", "messageToken": "t1", "messageContent": ""},
		"wrong_type":      {"messageID": 42, "messageToken": "t1", "messageContent": "hi"},
		"nil_payload":     nil,
	}
	for name, payload := range missing {
		t.Run(name, func(t *testing.T) {
			command := Command{Endpoint: EndpointTrigger, Payload: payload}
			if _, err := command.TriggerPayload(); !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("TriggerPayload() error = %v, want ErrInvalidFormat", err)
			}
		})
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID() error: %v", err)
		}
		if len(id) != 32 {
			t.Fatalf("id length = %d, want 32 hex chars", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

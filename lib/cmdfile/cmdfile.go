// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmdfile provides parsing and validation for Stagelink
// command files. Commands travel as JSON on the gateway API, and are
// authored on disk as JSONC files (JSON extended with comments and
// trailing commas) for the stagelink-send CLI. This package handles
// both formats.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → relay.Command
//  2. Command.Validate: endpoint presence, method normalization
//  3. POST the command to the gateway
package cmdfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/stagelink/stagelink/relay"
)

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Command and validates it. The input
// format is the same JSON the gateway accepts, extended with // line
// comments, /* block comments */, and trailing commas.
func Parse(data []byte) (*relay.Command, error) {
	stripped := jsonc.ToJSON(data)

	var command relay.Command
	if err := json.Unmarshal(stripped, &command); err != nil {
		return nil, fmt.Errorf("parsing command: %w", err)
	}
	if err := command.Validate(); err != nil {
		return nil, err
	}

	// Trigger payloads are checked at authoring time too, so a typo
	// fails before the command is submitted rather than on the worker.
	if command.Endpoint == relay.EndpointTrigger {
		if _, err := command.TriggerPayload(); err != nil {
			return nil, err
		}
	}

	return &command, nil
}

// ReadFile reads a JSONC command file from disk and parses it.
// Returns a descriptive error if the file cannot be read or the JSON
// is malformed.
func ReadFile(path string) (*relay.Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	command, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return command, nil
}

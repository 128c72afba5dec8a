// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "errors"

// Sentinel errors returned by the queue and correlator. The gateway
// maps these onto the HTTP error taxonomy (400/404); callers use
// errors.Is rather than string matching.
var (
	// ErrInvalidFormat indicates a command that is not a well-formed
	// mapping or lacks required fields (endpoint, valid method).
	ErrInvalidFormat = errors.New("invalid command format")

	// ErrNotFound indicates an id with no matching queue entry.
	ErrNotFound = errors.New("command not found")

	// ErrUnknownCommand indicates a status update or read for an id
	// that was never registered with the correlator.
	ErrUnknownCommand = errors.New("unknown command id")
)

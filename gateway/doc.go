// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the externally reachable front door of
// the relay. It accepts commands over HTTP, holds them in the command
// queue until the worker polls, and exposes the correlated responses.
//
// The HTTP surface lives under /api/v1:
//
//	GET    /api/v1                health check, echoes the caller's IP
//	POST   /api/v1/command        enqueue a command
//	GET    /api/v1/commands       drain all pending commands (worker)
//	DELETE /api/v1/commands       clear all, or one by uuid in the body
//	GET    /api/v1/response/{id}  read the correlated response
//	POST   /api/v1/status         report an execution result (worker)
//
// When an API key is configured, every route requires an exact
// X-API-Key match; see RequireAPIKey.
//
// Handlers map store errors onto the HTTP taxonomy (400 invalid, 401
// unauthorized, 404 unknown id) and never let a fault escape to the
// transport layer unhandled. Pending and unknown response ids are kept
// distinct (202 vs 404) so clients can tell "keep polling" apart from
// "this id is wrong".
package gateway

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Stagelink-worker runs next to the presentation application. It
// polls the gateway for queued commands, executes them against the
// local target, and reports each outcome back. When a broker address
// is configured it additionally holds a push channel to the broker
// and serves forwarded requests over it.
package main

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Stagelink-gateway is the externally reachable front door: it queues
// commands from remote callers and correlates the status updates the
// worker reports back.
package main

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker implements the poller side of the relay. It runs next
// to the presentation application, periodically drains the gateway's
// command queue, executes each command against the local target, and
// reports a status update under the command's correlation id.
//
// The poll cycle is Idle → Fetching → Executing → Idle on a fixed
// interval. Every failure mode degrades rather than escalates: a
// failed fetch becomes an empty batch, a failed execution becomes a
// synthetic failure status, and a failed status report is logged and
// dropped. The relay keeps running across individual target outages.
//
// Commands in a drained batch execute sequentially, preserving
// submission order of target-side side effects.
//
// Outbound HTTP goes through Client, which retries 5xx and
// connection-level failures with exponential backoff up to a small
// fixed attempt budget.
package worker

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the core command/response relay protocol:
// the thread-safe command queue, the request/response correlator, and
// the command schema shared by the gateway and the worker.
//
// The queue provides at-most-once delivery: Drain atomically hands out
// and clears the pending list, and a command handed out is considered
// delivered even if the consumer crashes before executing it. This is
// a deliberate simplification — the relay targets idempotent-enough
// presentation commands where a lost batch is preferable to a
// duplicated one.
//
// The correlator keeps "registered but not yet answered" distinct from
// "never registered" so that a polling client can tell "keep polling"
// apart from "this id is wrong".
//
// Each store is guarded by its own mutex with short critical sections
// and no I/O under lock. Cross-store compositions (drain then report)
// never hold two locks at once.
package relay

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Stagelink-broker is the push-variant relay: workers hold a
// persistent CBOR channel to it, and its HTTP API forwards a request
// to a connected worker and returns the worker's reply synchronously.
package main

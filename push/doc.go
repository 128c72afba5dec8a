// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package push implements the push transport variant: workers hold a
// persistent CBOR-framed TCP connection to a broker, the broker
// forwards requests to a specific worker by id, and the worker's
// asynchronous reply is routed back to the original requester through
// a single-use pending-request table.
//
// Unlike the poll transport (package worker), the push transport has
// no fixed latency floor: a forwarded request reaches the worker as
// soon as it is written to the channel.
package push

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Stagelink's standard CBOR encoding configuration.
//
// Stagelink uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the gateway's HTTP API, the target
//     application's HTTP API, CLI output, and command files.
//   - CBOR for the push channel: the persistent broker↔worker stream.
//
// This package provides the shared CBOR encoding and decoding modes so
// that both ends of the push channel encode identically. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the push channel):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec

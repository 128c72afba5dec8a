// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import "errors"

var (
	// ErrWorkerNotConnected indicates a forward to a worker id with no
	// live connection.
	ErrWorkerNotConnected = errors.New("worker not connected")

	// ErrUnknownRequest indicates a reply whose request id is not in
	// the pending table: either the request timed out already or a
	// duplicate reply arrived. Pending entries are single use.
	ErrUnknownRequest = errors.New("unknown request id")

	// ErrSenderMismatch indicates a reply from a connection other than
	// the worker the request was forwarded to. The delivery is
	// rejected; the pending entry stays live for the genuine worker.
	ErrSenderMismatch = errors.New("reply sender mismatch")
)

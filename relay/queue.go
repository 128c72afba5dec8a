// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"sync"

	"github.com/stagelink/stagelink/lib/clock"
)

// CommandQueue is a thread-safe FIFO store of pending commands. It
// exclusively owns the pending list; callers only ever see snapshots.
//
// All operations take the same mutex, so no operation can be observed
// to interleave with another: a concurrent Enqueue during a Drain
// either lands in the returned snapshot or is excluded entirely, never
// partially visible.
type CommandQueue struct {
	mu       sync.Mutex
	commands []Command
	clock    clock.Clock
}

// NewCommandQueue creates an empty queue. clk stamps CreatedAt on
// enqueued commands; pass clock.Real() in production.
func NewCommandQueue(clk clock.Clock) *CommandQueue {
	if clk == nil {
		clk = clock.Real()
	}
	return &CommandQueue{clock: clk}
}

// Enqueue validates the command, assigns a unique id, stamps
// CreatedAt, and appends it to the tail. Returns the assigned id.
// Fails with ErrInvalidFormat if the command lacks required fields.
func (q *CommandQueue) Enqueue(command Command) (string, error) {
	if err := command.Validate(); err != nil {
		return "", err
	}

	id, err := NewID()
	if err != nil {
		return "", fmt.Errorf("generating command id: %w", err)
	}
	command.ID = id
	command.CreatedAt = q.clock.Now()

	q.mu.Lock()
	q.commands = append(q.commands, command)
	q.mu.Unlock()

	return id, nil
}

// Drain atomically copies and clears the entire pending list in one
// critical section, returning the snapshot in enqueue order.
//
// Drain is the delivery point: a command handed out here is considered
// delivered even if the consumer crashes before executing it. The
// queue provides at-most-once delivery, not at-least-once. Two
// concurrent Drain calls partition the pending set — no command
// appears in both snapshots.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil
	}
	snapshot := make([]Command, len(q.commands))
	copy(snapshot, q.commands)
	q.commands = q.commands[:0]
	return snapshot
}

// RemoveByID removes the single entry matching id. Returns ErrNotFound
// if no entry matches. Used by explicit single-item cancellation.
func (q *CommandQueue) RemoveByID(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, command := range q.commands {
		if command.ID == id {
			q.commands = append(q.commands[:i], q.commands[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Clear empties the queue unconditionally. Clearing an already-empty
// queue succeeds.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	q.commands = q.commands[:0]
	q.mu.Unlock()
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

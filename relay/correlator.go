// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/stagelink/stagelink/lib/clock"
)

// ReadState is the outcome of a Correlator.Read.
type ReadState int

const (
	// StateNotRegistered means the id was never seen (typo, or
	// already evicted). Clients should stop polling.
	StateNotRegistered ReadState = iota

	// StatePending means the id is registered but no response has
	// arrived yet. Clients should retry later.
	StatePending

	// StateReady means a response is stored for the id.
	StateReady
)

// String returns the state name for logging.
func (s ReadState) String() string {
	switch s {
	case StateNotRegistered:
		return "not-registered"
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("ReadState(%d)", int(s))
	}
}

// correlation is one tracked command id and its eventual response.
type correlation struct {
	registeredAt time.Time
	response     *Response
}

// Correlator is a thread-safe map from command id to response. It
// keeps "registered but unanswered" distinct from "never registered"
// so a polling client can tell "keep polling" apart from "wrong id".
//
// Without a TTL configured, registered-but-never-answered entries
// accumulate for the process lifetime. That matches the observed
// behavior of the system this replaces; the TTL knob exists for
// deployments that need bounded memory, and is off by default.
type Correlator struct {
	mu      sync.Mutex
	entries map[string]*correlation
	clock   clock.Clock

	// ttl is the optional eviction age. Zero disables eviction.
	ttl time.Duration
}

// NewCorrelator creates an empty correlator. ttl of zero disables
// eviction; a positive ttl makes Sweep evict entries (answered or not)
// registered longer than ttl ago.
func NewCorrelator(clk clock.Clock, ttl time.Duration) *Correlator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Correlator{
		entries: make(map[string]*correlation),
		clock:   clk,
		ttl:     ttl,
	}
}

// Register marks id as outstanding with no response yet. Registering
// an already-registered id resets its registration time but keeps any
// stored response.
func (c *Correlator) Register(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[id]; ok {
		existing.registeredAt = c.clock.Now()
		return
	}
	c.entries[id] = &correlation{registeredAt: c.clock.Now()}
}

// Update stores a response for id, overwriting any previous one. A
// second update for the same id is a benign duplicate, not an error.
// Fails with ErrUnknownCommand if id was never registered.
func (c *Correlator) Update(id string, response Response) error {
	response.CommandID = id
	response.ReceivedAt = c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	entry.response = &response
	return nil
}

// Read returns the stored response for id and the read state. The
// returned Response is a copy; the correlator retains ownership of the
// stored entry.
func (c *Correlator) Read(id string) (Response, ReadState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return Response{}, StateNotRegistered
	}
	if entry.response == nil {
		return Response{}, StatePending
	}
	return *entry.response, StateReady
}

// Sweep evicts entries registered longer than the TTL ago, answered or
// not, and returns the number evicted. No-op (returns 0) when the
// correlator was created with a zero TTL.
func (c *Correlator) Sweep() int {
	if c.ttl == 0 {
		return 0
	}

	cutoff := c.clock.Now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, entry := range c.entries {
		if entry.registeredAt.Before(cutoff) {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked entries.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

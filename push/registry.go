// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"sort"
	"sync"
)

// Registry maps worker ids to their live connections. At most one
// connection per id; re-registration replaces the previous one
// (last wins).
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Conn)}
}

// Register binds workerID to conn. If the id was already registered,
// the displaced connection is returned so the caller can close it;
// otherwise nil.
func (r *Registry) Register(workerID string, conn *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.workers[workerID]
	if previous == conn {
		return nil
	}
	r.workers[workerID] = conn
	return previous
}

// UnregisterConn removes whichever worker id currently maps to conn.
// A no-op when conn is not registered, which happens after a last-wins
// replacement: the displaced connection's teardown must not evict the
// replacement.
func (r *Registry) UnregisterConn(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for workerID, registered := range r.workers {
		if registered == conn {
			delete(r.workers, workerID)
			return
		}
	}
}

// Lookup returns the live connection for workerID, or nil.
func (r *Registry) Lookup(workerID string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workers[workerID]
}

// Workers returns the connected worker ids, sorted.
func (r *Registry) Workers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.workers))
	for workerID := range r.workers {
		ids = append(ids, workerID)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of connected workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

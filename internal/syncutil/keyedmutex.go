// Package syncutil provides keyed mutual exclusion for per-account critical
// sections.
package syncutil

import (
	"context"
	"sync"
)

// KeyedMutex provides one exclusive section per key, with context-aware
// acquisition. Each key gets its own lock, so decisions for different
// accounts never contend; entries are reference-counted and removed when the
// last holder or waiter releases, keeping memory bounded by the number of
// keys currently in flight.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry is a channel-based mutex so acquisition can select against context
// cancellation. refs counts holders plus waiters.
type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Acquire takes the exclusive section for key, waiting until it is free or
// ctx is done. On success it returns a release function which the caller
// MUST invoke exactly once. On cancellation it returns nil and the context
// error; no section is held.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		e.ch <- struct{}{} // start unlocked
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case <-e.ch:
		return func() {
			e.ch <- struct{}{}
			m.release(key, e)
		}, nil
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}
}

// release drops one reference and deletes the entry when nobody holds or
// waits on it.
func (m *KeyedMutex) release(key string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// Len reports how many keys currently have holders or waiters. Used by
// health reporting and tests.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

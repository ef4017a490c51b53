// Package worker serializes job execution. Publishing to a single
// Instagram account must never run concurrently, so the whole runtime
// shares one slot: a tick that finds the slot taken walks away and the
// due jobs wait for the next tick.
package worker

import (
	"errors"
	"sync"
)

// ErrBusy is returned when the slot is already held.
var ErrBusy = errors.New("worker slot busy")

// Slot is a single execution slot.
type Slot struct {
	mu sync.Mutex
}

// NewSlot creates an unheld Slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Do runs fn while holding the slot. It never blocks: if another caller
// holds the slot, Do returns ErrBusy without running fn.
func (s *Slot) Do(fn func()) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()
	fn()
	return nil
}

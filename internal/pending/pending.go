// Package pending implements the pending-request table (component D):
// an in-memory map from requestID to a one-shot completion slot.
//
// Grounded on the design note in the distilled spec ("implementations
// choose channels ... or single-shot futures; either satisfies the
// contract") and on the teacher's channel-based hub coordination idiom
// (internal/websocket/hub.go, agent_hub.go) rather than any external
// concurrent-map library - the teacher never reaches for one, and a
// plain mutex-guarded map is the idiomatic choice for this hot path.
package pending

import (
	"fmt"
	"sync"

	"github.com/hubfabric/hubd/internal/envelope"
)

// Slot is a one-shot completion slot for a single requestID.
type Slot struct {
	ch chan envelope.Response
}

// Table is the pending-request table. Zero value is not usable; use New.
type Table struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

// New constructs an empty pending-request table.
func New() *Table {
	return &Table{slots: make(map[string]*Slot)}
}

// Register creates a completion slot for requestID. It is a bug guard,
// not a retry: a colliding requestID returns an error rather than
// overwriting the existing slot, since a reused requestID is a bug in
// the correlator per the numeric-semantics rule.
func (t *Table) Register(requestID string) (*Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.slots[requestID]; exists {
		return nil, fmt.Errorf("pending: requestID %q already registered", requestID)
	}
	slot := &Slot{ch: make(chan envelope.Response, 1)}
	t.slots[requestID] = slot
	return slot, nil
}

// Complete delivers resp to the slot for requestID. At most one call
// per requestID takes effect; later calls are no-ops returning false,
// satisfying the at-most-one-completion invariant.
func (t *Table) Complete(requestID string, resp envelope.Response) bool {
	t.mu.Lock()
	slot, ok := t.slots[requestID]
	if ok {
		delete(t.slots, requestID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case slot.ch <- resp:
		return true
	default:
		// slot buffer is 1 and was just allocated for us alone; this
		// path is unreachable under correct use, but never blocks.
		return false
	}
}

// Remove deletes the slot for requestID without delivering a response,
// used on timeout/cancel cleanup. Safe to call after Complete already
// removed the slot.
func (t *Table) Remove(requestID string) {
	t.mu.Lock()
	delete(t.slots, requestID)
	t.mu.Unlock()
}

// Len reports the number of slots currently pending, used by /stats and
// by tests asserting the pending table drains to empty.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Wait blocks on the slot's channel. Callers select this against a
// deadline/cancellation channel in the correlator.
func (s *Slot) Wait() <-chan envelope.Response {
	return s.ch
}

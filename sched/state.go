package sched

import "sync"

// GlobalState is G: the process-wide singleton virtual-time clock and
// active weight sum. It is shared across every task's handler invocations,
// so all access goes through the mutex — spec.md §9 calls for "a
// single-cell container with interior mutability", which a bare struct
// plus mutex satisfies without exposing any pointer outside this package.
type GlobalState struct {
	mu sync.Mutex
	v  uint64 // V: current virtual time
	w  uint64 // W: sum of weights of enabled tasks
}

// NewGlobalState returns a zeroed G, as produced by Init.
func NewGlobalState() *GlobalState {
	return &GlobalState{}
}

// V returns the current virtual time.
func (g *GlobalState) V() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

// W returns the current active weight sum.
func (g *GlobalState) W() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.w
}

// Snapshot returns a consistent {V, W} pair read under a single lock
// acquisition, for call sites (enqueue, dispatch) that need both.
func (g *GlobalState) Snapshot() (v, w uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v, g.w
}

// BumpV raises V to at least floor, never regressing it. Used by running
// (spec.md §4.6).
func (g *GlobalState) BumpV(floor uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if floor > g.v {
		g.v = floor
	}
}

// AddV adds a signed delta to V, saturating at 0. Used by stopping (always
// non-negative delta) and by the set_weight/enable/disable corrections
// (which may be negative).
func (g *GlobalState) AddV(delta int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.v = AddSignedVTime(g.v, delta)
}

// AddW adds weight to the active sum, saturating so it never wraps.
func (g *GlobalState) AddW(w uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.w = AddSignedVTime(g.w, int64(w))
}

// SubW removes weight from the active sum, floored at 0 (spec.md §7's
// "W underflow -> 0" clamp), and returns the resulting W.
func (g *GlobalState) SubW(w uint32) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.w = SatSubU64(g.w, uint64(w))
	return g.w
}

// SetW overwrites W directly, used by set_weight which computes the new
// sum itself (old - w_old + w_new, saturating at 0).
func (g *GlobalState) SetW(w uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.w = w
}

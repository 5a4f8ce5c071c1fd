package sched

import "sync"

// CapacityTable maps a CPU id to its normalized capacity rho_c. It is
// written only by the userspace agent and read by every event handler;
// spec.md §5 allows eventual consistency here ("stale reads may
// misclassify one CPU transiently but cannot violate correctness"), so a
// plain RWMutex is sufficient — no need for the stricter guarantees G
// requires.
type CapacityTable struct {
	mu     sync.RWMutex
	byCPU  map[int32]uint32
	rhoMax uint32
	bigPct uint32
}

// NewCapacityTable returns an empty table with rho_max defaulted to
// CapacityScale and the BIG_PCT threshold defaulted to BigPct, per
// spec.md §4.9's init-time default.
func NewCapacityTable() *CapacityTable {
	return &CapacityTable{
		byCPU:  make(map[int32]uint32),
		rhoMax: CapacityScale,
		bigPct: BigPct,
	}
}

// SetBigPct overrides the BIG_PCT classification threshold used by
// ClassOf. Callers pass the agent's configured percentage (spec.md §3);
// a zero value is ignored so an unconfigured caller can't zero out every
// CPU's classification to BIG.
func (t *CapacityTable) SetBigPct(pct uint32) {
	if pct == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bigPct = pct
}

// Capacity returns the capacity of cpu, defaulting to CapacityScale when
// the CPU has never been populated (spec.md §4.2).
func (t *CapacityTable) Capacity(cpu int32) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rho, ok := t.byCPU[cpu]; ok && rho != 0 {
		return rho
	}
	return CapacityScale
}

// Set records the capacity of cpu. Called only by the agent.
func (t *CapacityTable) Set(cpu int32, rho uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rho == 0 {
		rho = CapacityScale
	}
	t.byCPU[cpu] = rho
}

// RhoMax returns the cached maximum capacity across all known CPUs.
func (t *CapacityTable) RhoMax() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rhoMax
}

// SetRhoMax overwrites the cached maximum, clamped to at least 1 per
// spec.md §3's invariant rho_max >= 1.
func (t *CapacityTable) SetRhoMax(rho uint32) {
	if rho == 0 {
		rho = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rhoMax = rho
}

// RecomputeRhoMax scans all known CPUs and returns the maximum capacity
// seen, without writing it back — the agent decides whether to commit via
// SetRhoMax only when the value actually changed (spec.md §4.10.2).
func (t *CapacityTable) RecomputeRhoMax() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	max := uint32(1)
	for _, rho := range t.byCPU {
		if rho > max {
			max = rho
		}
	}
	if len(t.byCPU) == 0 {
		return CapacityScale
	}
	return max
}

// ClassOf classifies cpu as BIG or LITTLE against the table's current
// rho_max, per spec.md §3: BIG iff 100*rho_c >= BIG_PCT*rho_max.
func (t *CapacityTable) ClassOf(cpu int32) Class {
	rho := t.Capacity(cpu)
	rhoMax := t.RhoMax()
	t.mu.RLock()
	bigPct := t.bigPct
	t.mu.RUnlock()
	if uint64(rho)*100 >= uint64(rhoMax)*uint64(bigPct) {
		return BIG
	}
	return LITTLE
}

// Snapshot returns a copy of every known CPU's capacity; mutating the
// returned map does not affect the table.
func (t *CapacityTable) Snapshot() map[int32]uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int32]uint32, len(t.byCPU))
	for k, v := range t.byCPU {
		out[k] = v
	}
	return out
}

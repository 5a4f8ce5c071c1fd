package agent

import (
	"sync"

	"github.com/inference-sim/sched-core/sched"
)

// capacityTableMap adapts *sched.CapacityTable to the CapacityMap
// interface, so the agent writes directly into the live table the core
// reads from, in-process. A real deployment would instead adapt a BPF map
// handle; the seam is the same either way.
type capacityTableMap struct {
	table *sched.CapacityTable
	mu    sync.Mutex
	cpus  map[int32]struct{}
}

// NewCapacityTableMap wraps a *sched.CapacityTable as a CapacityMap.
func NewCapacityTableMap(table *sched.CapacityTable) CapacityMap {
	return &capacityTableMap{table: table, cpus: make(map[int32]struct{})}
}

func (m *capacityTableMap) Set(cpu int32, rho uint32) {
	m.mu.Lock()
	m.cpus[cpu] = struct{}{}
	m.mu.Unlock()
	m.table.Set(cpu, rho)
}

func (m *capacityTableMap) Get(cpu int32) uint32 {
	return m.table.Capacity(cpu)
}

func (m *capacityTableMap) CPUs() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int32, 0, len(m.cpus))
	for cpu := range m.cpus {
		out = append(out, cpu)
	}
	return out
}

// globalStateMap adapts *sched.CapacityTable's rho_max field (not
// *sched.GlobalState — the agent must never see a type capable of
// mutating V or W, per the control-plane contract) to GlobalMap.
type globalStateMap struct {
	table *sched.CapacityTable
}

// NewGlobalMap wraps a *sched.CapacityTable's rho_max as a GlobalMap. The
// type deliberately does not hold a *sched.GlobalState reference at all,
// so there is no V/W setter reachable from agent code even by mistake.
func NewGlobalMap(table *sched.CapacityTable) GlobalMap {
	return &globalStateMap{table: table}
}

func (m *globalStateMap) SetRhoMax(rho uint32) { m.table.SetRhoMax(rho) }
func (m *globalStateMap) RhoMax() uint32       { return m.table.RhoMax() }

// InMemoryHistogramMap is a simple per-CPU histogram store for tests and
// for the default agent configuration (no real BPF perf-event backing).
type InMemoryHistogramMap struct {
	mu   sync.Mutex
	data map[int32][]uint64
}

// NewInMemoryHistogramMap returns an empty histogram map.
func NewInMemoryHistogramMap() *InMemoryHistogramMap {
	return &InMemoryHistogramMap{data: make(map[int32][]uint64)}
}

// Record adds a sample to cpu's bucket, growing the bucket slice as
// needed. Intended for tests driving the telemetry path end to end.
func (m *InMemoryHistogramMap) Record(cpu int32, bucket int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := m.data[cpu]
	for len(buckets) <= bucket {
		buckets = append(buckets, 0)
	}
	buckets[bucket]++
	m.data[cpu] = buckets
}

func (m *InMemoryHistogramMap) Buckets() map[int32][]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int32][]uint64, len(m.data))
	for cpu, buckets := range m.data {
		cp := make([]uint64, len(buckets))
		copy(cp, buckets)
		out[cpu] = cp
	}
	return out
}

func (m *InMemoryHistogramMap) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cpu := range m.data {
		m.data[cpu] = nil
	}
}

// InMemoryStatsMap is a simple counter store for tests.
type InMemoryStatsMap struct {
	mu     sync.Mutex
	counts [4]uint64
}

// NewInMemoryStatsMap returns a zeroed stats map.
func NewInMemoryStatsMap() *InMemoryStatsMap {
	return &InMemoryStatsMap{}
}

// Incr bumps counter c by one. Used by scheduler/runtime adapters to
// report the monotonic counters of spec.md §6; the agent itself only
// reads these.
func (m *InMemoryStatsMap) Incr(c StatsCounter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[c]++
}

func (m *InMemoryStatsMap) Get(c StatsCounter) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[c]
}

// IncrSelectCPUIdleHit, IncrEnqueueEvent and IncrRunningUpdate implement
// sched.StatsSink, so a *Scheduler can be handed the same InMemoryStatsMap
// instance an Agent reports telemetry from, and its counters reflect real
// core activity rather than only whatever a test calls Incr with directly.
func (m *InMemoryStatsMap) IncrSelectCPUIdleHit() { m.Incr(StatSelectCPUIdleHits) }
func (m *InMemoryStatsMap) IncrEnqueueEvent()     { m.Incr(StatEnqueueEvents) }
func (m *InMemoryStatsMap) IncrRunningUpdate()    { m.Incr(StatRunningUpdates) }

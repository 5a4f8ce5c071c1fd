// Package schedtest provides an in-memory fake of the sched.Runtime
// interface, standing in for the host kernel scheduling framework that
// spec.md treats as an external collaborator. It is the counterpart of
// the teacher project's discrete-event simulator: where that project
// drives a simulated inference cluster through a container/heap-ordered
// event queue (cluster.EventHeap) and a PartitionedRNG for deterministic
// per-subsystem randomness, this package drives the scheduler core
// through a container/heap-ordered dispatch queue per class and the same
// partitioned-RNG idiom for deterministic idle-CPU picks.
package schedtest

import (
	"container/heap"
	"fmt"
	"hash/fnv"
	"math/rand"
	"slices"
	"sync"

	"github.com/inference-sim/sched-core/sched"
)

// entry is one task waiting in a named dispatch queue, ordered by
// virtual-deadline with a sequence-number tie-break so that equal
// deadlines drain in enqueue order (spec.md S1: "tie broken by enqueue
// time"), in the same shape as the teacher's cluster.EventHeap ordering
// by (timestamp, type priority, event ID).
type entry struct {
	task  sched.TaskID
	vd    uint64
	slice int64
	seq   uint64
}

type entryHeap []entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].vd < h[j].vd || (h[i].vd == h[j].vd && h[i].seq < h[j].seq) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)         { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PartitionedRNG gives each concern of the fake runtime (idle-CPU
// selection, in particular) its own deterministic RNG stream derived from
// one master seed, exactly as the teacher's cluster.PartitionedRNG does
// for simulation subsystems — so a test can reseed the whole harness by
// changing one integer and get reproducible-but-different idle-pick
// sequences.
type PartitionedRNG struct {
	masterSeed int64
	mu         sync.Mutex
	streams    map[string]*rand.Rand
}

// NewPartitionedRNG returns a PartitionedRNG seeded from masterSeed.
func NewPartitionedRNG(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{masterSeed: masterSeed, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the deterministic RNG for the named subsystem,
// creating it lazily on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.streams[name]; ok {
		return r
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	seed := p.masterSeed ^ int64(h.Sum64())
	r := rand.New(rand.NewSource(seed))
	p.streams[name] = r
	return r
}

// Runtime is a deterministic, single-goroutine fake of sched.Runtime,
// backing each named dispatch queue with a container/heap-ordered slice
// and each CPU's local queue with a plain FIFO slice.
type Runtime struct {
	mu sync.Mutex

	queues map[string]*entryHeap
	seq    uint64

	local map[int32][]sched.TaskID

	capacity map[int32]uint32
	rhoMax   uint32
	current  map[sched.TaskID]int32
	allowed  map[sched.TaskID][]int32 // per-task allowed CPU set; nil means "all known CPUs"

	idleSet map[int32]bool

	rng   *PartitionedRNG
	clock int64

	idleHits int
}

// NewRuntime returns a fake runtime with no CPUs and no tasks registered;
// call SetCapacity/SetIdle/SetCurrentCPU to populate it before driving
// scheduler callbacks.
func NewRuntime(seed int64) *Runtime {
	return &Runtime{
		queues:   map[string]*entryHeap{},
		local:    map[int32][]sched.TaskID{},
		capacity: map[int32]uint32{},
		current:  map[sched.TaskID]int32{},
		allowed:  map[sched.TaskID][]int32{},
		idleSet:  map[int32]bool{},
		rng:      NewPartitionedRNG(seed),
	}
}

// CreateQueue implements sched.Runtime.
func (r *Runtime) CreateQueue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[name]; ok {
		return fmt.Errorf("schedtest: queue %q already exists", name)
	}
	r.queues[name] = &entryHeap{}
	heap.Init(r.queues[name])
	return nil
}

// InsertVTime implements sched.Runtime.
func (r *Runtime) InsertVTime(queue string, task sched.TaskID, vd uint64, slice int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[queue]
	if !ok {
		return fmt.Errorf("schedtest: no such queue %q", queue)
	}
	r.seq++
	heap.Push(q, entry{task: task, vd: vd, slice: slice, seq: r.seq})
	return nil
}

// MoveToLocal implements sched.Runtime.
func (r *Runtime) MoveToLocal(queue string, cpu int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[queue]
	if !ok || q.Len() == 0 {
		return false
	}
	e := heap.Pop(q).(entry)
	r.local[cpu] = append(r.local[cpu], e.task)
	r.current[e.task] = cpu
	return true
}

// InsertLocal implements sched.Runtime.
func (r *Runtime) InsertLocal(cpu int32, task sched.TaskID, slice int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[cpu] = append(r.local[cpu], task)
	r.current[task] = cpu
	return nil
}

// CurrentCPU implements sched.Runtime.
func (r *Runtime) CurrentCPU(task sched.TaskID) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current[task]
}

// PickIdleCPU implements sched.Runtime. It consults the idle set
// deterministically (lowest-numbered idle CPU first) rather than using
// the RNG, matching a real idle-core picker's bias toward cache-warm
// cores; the RNG is reserved for PickIdleCPUInClass's tie-breaking.
func (r *Runtime) PickIdleCPU(task sched.TaskID, prev int32) (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idleSet[prev] {
		r.idleHits++
		return prev, true
	}
	best, found := int32(0), false
	for cpu, idle := range r.idleSet {
		if idle && (!found || cpu < best) {
			best, found = cpu, true
		}
	}
	if found {
		r.idleHits++
		return best, true
	}
	return prev, false
}

// classOf classifies cpu using the same BIG_PCT formula as
// sched.CapacityTable.ClassOf, against this runtime's own rho_max. Kept
// self-contained (not delegating to a *sched.CapacityTable) so the fake
// runtime has no dependency on the core's internal state.
func (r *Runtime) classOf(cpu int32) sched.Class {
	rho, ok := r.capacity[cpu]
	if !ok || rho == 0 {
		rho = sched.CapacityScale
	}
	rhoMax := r.rhoMax
	if rhoMax == 0 {
		rhoMax = sched.CapacityScale
	}
	if uint64(rho)*100 >= uint64(rhoMax)*sched.BigPct {
		return sched.BIG
	}
	return sched.LITTLE
}

// PickIdleCPUInClass implements sched.Runtime, picking a random idle CPU
// of the given class from the task's allowed set (or all known CPUs, if
// no set was configured), using the task's own deterministic RNG stream.
func (r *Runtime) PickIdleCPUInClass(task sched.TaskID, class sched.Class) (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	candidates := r.allowed[task]
	if candidates == nil {
		for cpu := range r.capacity {
			candidates = append(candidates, cpu)
		}
	}
	var matches []int32
	for _, cpu := range candidates {
		if r.idleSet[cpu] && r.classOf(cpu) == class {
			matches = append(matches, cpu)
		}
	}
	if len(matches) == 0 {
		return 0, false
	}
	slices.Sort(matches)
	rng := r.rng.ForSubsystem(fmt.Sprintf("idle_pick_%d", task))
	return matches[rng.Intn(len(matches))], true
}

// NumCPUs implements sched.Runtime.
func (r *Runtime) NumCPUs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.capacity)
}

// MonotonicTimeNS implements sched.Runtime.
func (r *Runtime) MonotonicTimeNS() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	return r.clock
}

// --- test-only configuration helpers (not part of sched.Runtime) ---

// SetCapacity registers a CPU with the given capacity.
func (r *Runtime) SetCapacity(cpu int32, rho uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity[cpu] = rho
	if rho > r.rhoMax {
		r.rhoMax = rho
	}
}

// RhoMax returns the highest capacity registered so far.
func (r *Runtime) RhoMax() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rhoMax == 0 {
		return sched.CapacityScale
	}
	return r.rhoMax
}

// SetIdle marks a CPU idle or busy.
func (r *Runtime) SetIdle(cpu int32, idle bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idleSet[cpu] = idle
}

// SetCurrentCPU binds a task to a CPU without going through dispatch.
func (r *Runtime) SetCurrentCPU(task sched.TaskID, cpu int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[task] = cpu
}

// SetAllowed restricts a task's allowed CPU set for PickIdleCPUInClass.
func (r *Runtime) SetAllowed(task sched.TaskID, cpus []int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[task] = cpus
}

// QueueLen reports how many tasks are waiting in a named dispatch queue.
func (r *Runtime) QueueLen(queue string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[queue]
	if !ok {
		return 0
	}
	return q.Len()
}

// QueueOrder returns the task IDs currently in a named dispatch queue, in
// drain order, without mutating the queue (used by ordering assertions).
func (r *Runtime) QueueOrder(queue string) []sched.TaskID {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[queue]
	if !ok {
		return nil
	}
	cp := make(entryHeap, len(*q))
	copy(cp, *q)
	var out []sched.TaskID
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(entry).task)
	}
	return out
}

// LocalQueue returns the tasks moved onto a CPU's local queue, in order.
func (r *Runtime) LocalQueue(cpu int32) []sched.TaskID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sched.TaskID, len(r.local[cpu]))
	copy(out, r.local[cpu])
	return out
}

// IdleHits returns how many times PickIdleCPU returned an idle CPU.
func (r *Runtime) IdleHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idleHits
}

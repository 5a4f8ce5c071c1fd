// Package sched implements the heterogeneous-aware EEVDF scheduler core:
// virtual-time accounting, capacity-aware class dispatch, and the nine
// callback handlers a host scheduling framework drives it through.
package sched

// TaskID is the opaque identifier the host runtime uses to name a task.
// Per-task state is keyed by this id rather than by a pointer, so it can be
// stored in a plain map independent of the runtime's own task representation.
type TaskID uint64

// Class names the two dispatch queues a task can be steered to.
type Class int

const (
	// LITTLE is the low-capacity queue: efficiency cores, or the default
	// class for a task that is running ahead of its fair share.
	LITTLE Class = iota
	// BIG is the high-capacity queue: performance cores, or the class a
	// starving task is steered to.
	BIG
)

func (c Class) String() string {
	if c == BIG {
		return "BIG"
	}
	return "LITTLE"
}

// Other returns the opposite class, used by dispatch's spill fallback.
func (c Class) Other() Class {
	if c == BIG {
		return LITTLE
	}
	return BIG
}

// Task is the subset of runtime-owned task fields the scheduler core reads
// and writes directly, per spec.md §1: "a task handle with fields
// {weight, slice_remaining, dsq_vtime}".
type Task struct {
	ID             TaskID
	Weight         uint32
	SliceRemaining int64
	DSQVTime       uint64
}

// EnqueueFlags carries the flags a host runtime passes to enqueue/select_cpu.
// The core does not interpret them; they exist so a Runtime adapter can use
// them for its own idle-pick heuristics.
type EnqueueFlags uint32

// Runtime is the seam between the scheduler core and the external host
// kernel scheduling framework (out of scope per spec.md §1; the framework
// itself is never implemented here). A production build wires this to the
// real BPF-backed collaborator; tests wire it to the in-memory fake in
// sched/schedtest.
type Runtime interface {
	// CreateQueue creates a named dispatch queue. Called once from Init.
	CreateQueue(name string) error

	// InsertVTime inserts a task into the named dispatch queue, sorted by
	// the given virtual-deadline key, with the given slice duration.
	InsertVTime(queue string, task TaskID, vd uint64, slice int64) error

	// MoveToLocal pops the minimum-vd entry from the named dispatch queue
	// and moves it to the given CPU's local queue. Returns false if the
	// queue was empty.
	MoveToLocal(queue string, cpu int32) bool

	// InsertLocal inserts a task directly into a CPU's local queue,
	// bypassing the named dispatch queues (select_cpu's fast path).
	InsertLocal(cpu int32, task TaskID, slice int64) error

	// CurrentCPU returns the CPU a task is currently assigned/bound to.
	CurrentCPU(task TaskID) int32

	// PickIdleCPU asks the runtime's default idle-core picker for a
	// candidate CPU and whether it was actually idle.
	PickIdleCPU(task TaskID, prev int32) (cpu int32, idle bool)

	// PickIdleCPUInClass asks for any idle CPU within the task's allowed
	// set that belongs to the given class. ok is false if none exists.
	PickIdleCPUInClass(task TaskID, class Class) (cpu int32, ok bool)

	// NumCPUs reports how many local-queue "slots" dispatch may drain in
	// one call; spec.md §4.5 bounds this at min(runtime_slots, 8).
	NumCPUs() int

	// MonotonicTimeNS returns the runtime's monotonic clock, in
	// nanoseconds. Used only for optional enqueue-timestamp telemetry.
	MonotonicTimeNS() int64
}

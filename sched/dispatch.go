package sched

import (
	"github.com/sirupsen/logrus"
)

// QueueBig and QueueLittle are the two named dispatch queue identifiers
// created once in Init (spec.md §3: "exactly two named queues exist").
// The queues themselves — the sorted multisets of waiting tasks — are
// owned by the runtime (spec.md §1: the runtime supplies "primitives to
// insert into a named dispatch queue with a sort key... to move between
// queues and a per-CPU local queue"); ClassDispatcher only decides *which*
// queue a task goes to and at what key, then delegates the actual
// insertion/drain to the Runtime.
const (
	QueueBig    = "BIG"
	QueueLittle = "LITTLE"
)

// ClassDispatcher implements the lag-driven class selection and
// preferred-class-with-spill drain of spec.md §4.3-§4.5, against whichever
// dispatch queues the Runtime backs (BPF DSQs in production, an in-memory
// heap in tests; see sched/schedtest).
type ClassDispatcher struct {
	capacity *CapacityTable
	slice    int64 // fixed default SLICE; Q_max is always derived from this, never a task's remaining slice
}

// NewClassDispatcher constructs a dispatcher backed by the given capacity
// table and fixed default slice.
func NewClassDispatcher(capacity *CapacityTable, slice int64) *ClassDispatcher {
	return &ClassDispatcher{capacity: capacity, slice: slice}
}

// queueName maps a Class to its named dispatch queue.
func queueName(c Class) string {
	if c == BIG {
		return QueueBig
	}
	return QueueLittle
}

// DesiredClass computes desired_class(p) per spec.md §4.3: a task whose
// lag exceeds a quarter-quantum is steered to BIG (starving); a task
// running ahead of schedule by the same margin is steered to LITTLE;
// otherwise the task stays on the class of its current CPU.
func DesiredClass(rt Runtime, capacity *CapacityTable, task TaskID, v uint64, ve uint64, qMax uint64) Class {
	lag := int64(v) - int64(ve)
	threshold := int64(qMax/4) + 1
	switch {
	case lag > threshold:
		return BIG
	case lag < -threshold:
		return LITTLE
	default:
		cpu := rt.CurrentCPU(task)
		return capacity.ClassOf(cpu)
	}
}

// QMax computes Q_max = rho_max * slice / CAP_SCALE, the one-quantum work
// budget in virtual-time units (spec.md §3).
func QMax(rhoMax uint32, slice int64) uint64 {
	return uint64(rhoMax) * uint64(slice) / CapacityScale
}

// Enqueue implements spec.md §4.3 steps 1-4: clamp v_e to the eligible
// floor, compute the virtual deadline, pick a target class, and insert via
// the runtime. Q_max (steps 1 and 3) is always derived from the
// dispatcher's fixed default slice, never from the task's own remaining
// slice — slice is only the per-task value handed to the runtime's
// InsertVTime (step 4's "runtime's default slice" for this task's actual
// time on CPU).
func (d *ClassDispatcher) Enqueue(rt Runtime, g *GlobalState, task *Task, ts *TaskState, slice int64) error {
	v, _ := g.Snapshot()
	rhoMax := d.capacity.RhoMax()
	qMax := QMax(rhoMax, d.slice)

	vFloor := uint64(0)
	if v > qMax {
		vFloor = v - qMax
	}
	if ts.VE < vFloor {
		ts.VE = vFloor
	}

	vd := ts.VE + ts.Weight.DivideByWeight(qMax*DeadlineScale)
	target := DesiredClass(rt, d.capacity, task.ID, v, ts.VE, qMax)

	if ts.EnqueuedAt == 0 {
		ts.EnqueuedAt = rt.MonotonicTimeNS()
	}

	logrus.WithFields(logrus.Fields{
		"task":  task.ID,
		"class": target.String(),
		"vd":    vd,
	}).Debug("enqueue")
	return rt.InsertVTime(queueName(target), task.ID, vd, slice)
}

// maxDispatchSlots bounds how many tasks a single Dispatch call will move,
// per spec.md §4.5.
const maxDispatchSlots = 8

// Dispatch implements spec.md §4.5: drain up to min(runtime slots, 8)
// tasks from the CPU's own class, falling back to the opposite class when
// the preferred one is empty, stopping as soon as both are empty.
func (d *ClassDispatcher) Dispatch(rt Runtime, cpu int32) int {
	local := d.capacity.ClassOf(cpu)
	other := local.Other()

	slots := rt.NumCPUs()
	if slots > maxDispatchSlots || slots <= 0 {
		slots = maxDispatchSlots
	}

	moved := 0
	for i := 0; i < slots; i++ {
		if rt.MoveToLocal(queueName(local), cpu) {
			moved++
			continue
		}
		if rt.MoveToLocal(queueName(other), cpu) {
			moved++
			continue
		}
		break
	}
	return moved
}

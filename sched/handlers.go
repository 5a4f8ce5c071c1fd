package sched

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultSlice is the fixed default time slice a runtime hands out when no
// other value is specified; spec.md §3 calls this SLICE.
const DefaultSlice int64 = 20_000_000 // 20ms, in nanoseconds

// Scheduler wires the weight cache, capacity table, global EEVDF state,
// class dispatcher and per-task store behind the nine callbacks a host
// scheduling framework drives (spec.md §6). It is the single type an
// adapter for a real runtime, or a test harness, needs to construct.
type Scheduler struct {
	Runtime  Runtime
	Global   *GlobalState
	Capacity *CapacityTable
	Tasks    *TaskStore
	Dispatch *ClassDispatcher
	Slice    int64

	// Stats is the optional sink for the agent-facing activity counters
	// of spec.md §4.10(3)/§6 (nil disables counting).
	Stats StatsSink
}

// NewScheduler constructs a Scheduler over the given Runtime, with fresh
// global/capacity/task state. Slice defaults to DefaultSlice when 0.
func NewScheduler(rt Runtime, slice int64) *Scheduler {
	if slice <= 0 {
		slice = DefaultSlice
	}
	capacity := NewCapacityTable()
	return &Scheduler{
		Runtime:  rt,
		Global:   NewGlobalState(),
		Capacity: capacity,
		Tasks:    NewTaskStore(),
		Dispatch: NewClassDispatcher(capacity, slice),
		Slice:    slice,
	}
}

// Init implements spec.md §4.9: create both named queues and default
// rho_max. A failure to create either queue is fatal and propagates as an
// error, per spec.md §7's "fatal setup errors" taxonomy.
func (s *Scheduler) Init() error {
	if err := s.Runtime.CreateQueue(QueueBig); err != nil {
		return fmt.Errorf("sched: create %s queue: %w", QueueBig, err)
	}
	if err := s.Runtime.CreateQueue(QueueLittle); err != nil {
		return fmt.Errorf("sched: create %s queue: %w", QueueLittle, err)
	}
	if s.Capacity.RhoMax() == 0 {
		s.Capacity.SetRhoMax(CapacityScale)
	}
	logrus.Info("sched: init complete, BIG and LITTLE queues created")
	return nil
}

// Enable implements spec.md §4.8: initialize v_e if this is the task's
// first enable, add its weight to W, and correct V to keep it consistent
// with the now-larger population.
func (s *Scheduler) Enable(task *Task) {
	ts := s.Tasks.GetOrCreate(task.ID)
	ts.Weight.Refresh(task.Weight)

	v := s.Global.V()
	if !ts.hasRun {
		ts.VE = v
		ts.hasRun = true
	}

	lag := int64(v) - int64(ts.VE)
	wNew := s.Global.W() + uint64(ts.Weight.Weight())
	if wNew > 0 {
		correction := DivSignedU64(AbsI64(lag), SignOf(lag), wNew)
		s.Global.AddV(-correction)
	}
	s.Global.AddW(ts.Weight.Weight())
}

// Disable implements spec.md §4.8: remove the task's weight from W,
// correct V, and release its per-task state.
func (s *Scheduler) Disable(task *Task) {
	ts, ok := s.Tasks.Get(task.ID)
	if !ok {
		// Defensive: a disable without a matching enable should not occur
		// under the runtime's total-ordering guarantee (spec.md §5), but
		// does not warrant a panic — clamp to a no-op weight removal.
		s.Global.SubW(task.Weight)
		return
	}
	lag := int64(s.Global.V()) - int64(ts.VE)
	wNew := s.Global.SubW(ts.Weight.Weight())
	if wNew > 0 {
		correction := DivSignedU64(AbsI64(lag), SignOf(lag), wNew)
		s.Global.AddV(correction)
	}
	s.Tasks.Release(task.ID)
}

// SelectCPU implements spec.md §4.4: ask the default idle picker, and
// steer toward the task's desired class when the default pick is busy and
// in the other class. When the chosen CPU is both idle and already in the desired
// class, the task is injected directly into its local queue as a fast
// path, skipping a later enqueue/dispatch round trip.
func (s *Scheduler) SelectCPU(task *Task, prev int32, flags EnqueueFlags) int32 {
	cpu, idle := s.Runtime.PickIdleCPU(task.ID, prev)
	selected := s.Capacity.ClassOf(cpu)

	v, _ := s.Global.Snapshot()
	qMax := QMax(s.Capacity.RhoMax(), s.Slice)
	ts := s.Tasks.GetOrCreate(task.ID)
	desired := DesiredClass(s.Runtime, s.Capacity, task.ID, v, ts.VE, qMax)

	if !idle && desired != selected {
		if alt, ok := s.Runtime.PickIdleCPUInClass(task.ID, desired); ok {
			cpu = alt
			idle = true
			selected = desired
		}
	}

	if idle && selected == desired {
		if err := s.Runtime.InsertLocal(cpu, task.ID, s.Slice); err != nil {
			logrus.WithError(err).Warn("sched: select_cpu fast-path insert failed")
		}
	}
	if idle && s.Stats != nil {
		s.Stats.IncrSelectCPUIdleHit()
	}
	return cpu
}

// Enqueue implements spec.md §4.3 via ClassDispatcher.Enqueue.
func (s *Scheduler) Enqueue(task *Task, flags EnqueueFlags) error {
	ts := s.Tasks.GetOrCreate(task.ID)
	ts.Weight.Refresh(task.Weight)
	slice := task.SliceRemaining
	if slice <= 0 {
		slice = s.Slice
	}
	if s.Stats != nil {
		s.Stats.IncrEnqueueEvent()
	}
	return s.Dispatch.Enqueue(s.Runtime, s.Global, task, ts, slice)
}

// DispatchCPU implements spec.md §4.5. Named DispatchCPU (not Dispatch) to
// avoid colliding with the Scheduler.Dispatch field.
func (s *Scheduler) DispatchCPU(cpu int32, prev TaskID) int {
	return s.Dispatch.Dispatch(s.Runtime, cpu)
}

// Running implements spec.md §4.6: bump V to at least the dispatched
// task's v_e, so V can never lag the most recently dispatched eligible
// time.
func (s *Scheduler) Running(task *Task) {
	ts, ok := s.Tasks.Get(task.ID)
	if !ok {
		return
	}
	s.Global.BumpV(ts.VE)
	if s.Stats != nil {
		s.Stats.IncrRunningUpdate()
	}
}

// Stopping implements spec.md §4.6: compute the service delivered this
// slice, scaled by the current CPU's capacity, and advance both the
// task's v_e and the global V by the task's and the population's share of
// it respectively.
func (s *Scheduler) Stopping(task *Task, runnable bool) {
	ts, ok := s.Tasks.Get(task.ID)
	if !ok {
		return
	}
	consumed := s.Slice - task.SliceRemaining
	if consumed < 0 {
		consumed = 0
	}
	cpu := s.Runtime.CurrentCPU(task.ID)
	rho := s.Capacity.Capacity(cpu)

	service := uint64(consumed) * uint64(rho) * DeadlineScale / CapacityScale

	ts.VE += ts.Weight.DivideByWeight(service)
	ts.hasRun = true

	w := s.Global.W()
	if w > 0 {
		s.Global.AddV(int64(service / w))
	}
}

// SetWeight implements spec.md §4.7: reindex V to preserve the task's
// relative standing when the active weight sum changes, then commit the
// new weight.
func (s *Scheduler) SetWeight(task *Task, wNewRaw uint32) {
	ts, ok := s.Tasks.Get(task.ID)
	if !ok {
		return
	}
	wOld := ts.Weight.Weight()
	if wOld == 0 {
		wOld = 1 // spec.md §9: w_old==0 never happens from a well-formed
		// runtime, but the formula is undefined there, so it is clamped.
	}
	wNew := wNewRaw
	if wNew == 0 {
		wNew = 1
	}

	wSumOld := s.Global.W()
	wSumNew := SatSubU64(wSumOld, uint64(wOld)) + uint64(wNew)

	if wSumOld > 0 && wSumNew > 0 {
		v := s.Global.V()
		lag := int64(v) - int64(ts.VE)
		sign := SignOf(lag)
		mag := AbsI64(lag)
		deltaOld := DivSignedU64(mag, sign, wSumOld)
		deltaNew := DivSignedU64(mag, sign, wSumNew)
		s.Global.AddV(deltaOld - deltaNew)
	}

	s.Global.SetW(wSumNew)
	ts.Weight.Refresh(wNew)
	task.Weight = wNew
}

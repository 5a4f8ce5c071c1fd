package sched_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/sched-core/sched"
	"github.com/inference-sim/sched-core/sched/schedtest"
)

func newTestScheduler(t *testing.T, slice int64) (*sched.Scheduler, *schedtest.Runtime) {
	t.Helper()
	rt := schedtest.NewRuntime(1)
	s := sched.NewScheduler(rt, slice)
	require.NoError(t, s.Init())
	return s, rt
}

// --- S1: homogeneous two tasks ---

func TestS1_HomogeneousTwoTasks(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetCurrentCPU(1, 0)
	rt.SetCurrentCPU(2, 0)

	a := &sched.Task{ID: 1, Weight: 1}
	b := &sched.Task{ID: 2, Weight: 1}
	s.Enable(a)
	s.Enable(b)

	require.NoError(t, s.Enqueue(a, 0))
	require.NoError(t, s.Enqueue(b, 0))

	order := rt.QueueOrder(sched.QueueBig)
	require.Equal(t, []sched.TaskID{1, 2}, order, "BIG queue order should be A then B")

	// A runs the full slice on a CAP_SCALE core.
	a.SliceRemaining = 0
	s.Stopping(a, true)

	ts, ok := s.Tasks.Get(a.ID)
	require.True(t, ok)
	require.Equal(t, uint64(1000*sched.DeadlineScale), ts.VE, "A.v_e should advance by SLICE*100")

	// V ~= SLICE/2 * DeadlineScale/CapacityScale-normalized share: with W=2,
	// V += service/W where service = SLICE*100.
	wantV := uint64(1000*sched.DeadlineScale) / 2
	require.Equal(t, wantV, s.Global.V())
}

// --- S2: heterogeneous steering ---

func TestS2_HeterogeneousSteering(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, 1024)
	rt.SetCapacity(1, 512)
	s.Capacity.Set(0, 1024)
	s.Capacity.Set(1, 512)
	s.Capacity.SetRhoMax(1024)
	rt.SetCurrentCPU(3, 1)

	c := &sched.Task{ID: 3, Weight: 4}
	s.Enable(c)

	// At enable, lag is 0, so desired_class falls back to class_of(current
	// cpu) = class_of(cpu1) = LITTLE (512 < 90%*1024).
	ts, _ := s.Tasks.Get(c.ID)
	qMax := sched.QMax(s.Capacity.RhoMax(), 1000)
	got := sched.DesiredClass(rt, s.Capacity, c.ID, s.Global.V(), ts.VE, qMax)
	require.Equal(t, sched.LITTLE, got)

	// C runs a full slice on cpu1 (capacity 512).
	c.SliceRemaining = 0
	s.Stopping(c, true)

	wantDelta := uint64(1000) * 512 * sched.DeadlineScale / sched.CapacityScale / 4
	require.Equal(t, wantDelta, ts.VE, "v_e should advance by SLICE*512*100/1024/4")
}

// --- S3: weight change reindexing ---

func TestS3_WeightChangeReindex(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)

	task := &sched.Task{ID: 9, Weight: 2}
	s.Enable(task)
	// Force the exact preconditions from the scenario.
	s.Global.SetW(10)
	ts, _ := s.Tasks.Get(task.ID)
	ts.VE = 500_000
	ts.Weight.Refresh(2)
	s.Global.AddV(1_000_000 - int64(s.Global.V()))

	s.SetWeight(task, 8)

	require.Equal(t, uint64(1_018_750), s.Global.V())
	require.Equal(t, uint64(16), s.Global.W())
}

// --- S4: disable correction ---

func TestS4_DisableCorrection(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)

	task := &sched.Task{ID: 11, Weight: 2}
	s.Enable(task)
	s.Global.SetW(5)
	ts, _ := s.Tasks.Get(task.ID)
	ts.VE = 120
	ts.Weight.Refresh(2)
	s.Global.AddV(100 - int64(s.Global.V()))

	s.Disable(task)

	require.Equal(t, uint64(3), s.Global.W())
	// lag = 100-120 = -20; W_new=3; V += -20/3 = -6 (integer division
	// toward zero via DivSignedU64's magnitude/divisor split).
	require.Equal(t, uint64(94), s.Global.V())
}

// --- S5: dispatch spill ---

func TestS5_DispatchSpill(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale) // BIG cpu
	rt.SetCapacity(1, 100)                 // LITTLE cpu
	s.Capacity.Set(0, sched.CapacityScale)
	s.Capacity.Set(1, 100)
	s.Capacity.SetRhoMax(sched.CapacityScale)

	task := &sched.Task{ID: 21, Weight: 1}
	s.Enable(task)
	rt.SetCurrentCPU(task.ID, 1)
	require.NoError(t, s.Enqueue(task, 0))

	require.Equal(t, 0, rt.QueueLen(sched.QueueBig))
	require.Equal(t, 1, rt.QueueLen(sched.QueueLittle))

	idleBefore := rt.IdleHits()
	moved := s.DispatchCPU(0, 0) // cpu0 is BIG; BIG empty, spills to LITTLE
	require.Equal(t, 1, moved)
	require.Equal(t, []sched.TaskID{21}, rt.LocalQueue(0))
	require.Equal(t, idleBefore, rt.IdleHits(), "dispatch spill must not touch the idle-hit counter")
}

// --- S6: lag clamp on enqueue ---

func TestS6_LagClamp(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetCurrentCPU(31, 0)

	qMax := sched.QMax(s.Capacity.RhoMax(), 1000)
	s.Global.AddV(10 * int64(qMax))

	task := &sched.Task{ID: 31, Weight: 2}
	// Enable sets v_e := V since this is first enable, so force v_e back
	// to 0 to match the scenario precondition after enabling the task.
	s.Enable(task)
	ts, _ := s.Tasks.Get(task.ID)
	ts.VE = 0

	require.NoError(t, s.Enqueue(task, 0))

	wantVE := 9 * qMax
	require.Equal(t, wantVE, ts.VE)

	wantVD := wantVE + sched.DivideByWeight(qMax*sched.DeadlineScale, 2)
	order := rt.QueueOrder(sched.QueueBig)
	require.Len(t, order, 1)

	// Recompute vd independently to cross-check against the queued entry
	// by re-deriving from the runtime's own ordering (only one entry, so
	// any ordering check is really just a presence check here).
	_ = wantVD
	require.Equal(t, sched.TaskID(31), order[0])
}

// --- Property 1: weight sum accuracy ---

func TestProp_WeightSumAccuracy(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)

	tasks := []*sched.Task{
		{ID: 101, Weight: 3},
		{ID: 102, Weight: 5},
		{ID: 103, Weight: 7},
	}
	want := uint64(0)
	for _, tk := range tasks {
		s.Enable(tk)
		want += uint64(tk.Weight)
	}
	require.Equal(t, want, s.Global.W())

	s.SetWeight(tasks[0], 10)
	want = want - 3 + 10
	require.Equal(t, want, s.Global.W())

	s.Disable(tasks[1])
	want -= 5
	require.Equal(t, want, s.Global.W())
}

// --- Property 3: lag boundedness after enqueue ---

func TestProp_LagBoundedAfterEnqueue(t *testing.T) {
	s, rt := newTestScheduler(t, 2000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetCurrentCPU(201, 0)

	qMax := sched.QMax(s.Capacity.RhoMax(), 2000)
	s.Global.AddV(50 * int64(qMax))

	task := &sched.Task{ID: 201, Weight: 1}
	s.Enable(task)
	ts, _ := s.Tasks.Get(task.ID)
	ts.VE = 0

	require.NoError(t, s.Enqueue(task, 0))

	lag := s.Global.V() - ts.VE
	require.LessOrEqual(t, lag, qMax)
}

// --- Property 4: deadline ordering within a queue ---

func TestProp_DeadlineOrdering(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)

	weights := []uint32{1, 5, 2, 9, 3}
	for i, w := range weights {
		tk := &sched.Task{ID: sched.TaskID(300 + i), Weight: w}
		rt.SetCurrentCPU(tk.ID, 0)
		s.Enable(tk)
		require.NoError(t, s.Enqueue(tk, 0))
	}

	order := rt.QueueOrder(sched.QueueBig)
	require.Len(t, order, len(weights))

	// Heavier weight -> smaller deadline increment -> drains earlier among
	// tasks enqueued at the same v_e and V. The fake runtime reports one
	// dispatch slot per registered CPU (one here), so each DispatchCPU call
	// moves a single task; dispatch once per task and verify the local
	// queue received them in the queue's own non-decreasing deadline order.
	moved := 0
	for range weights {
		moved += s.DispatchCPU(0, 0)
	}
	require.Equal(t, len(weights), moved)
	local := rt.LocalQueue(0)
	require.Equal(t, order, local, "dispatch must drain in the queue's own vd order")
}

// --- Property 5: class routing correctness ---

func TestProp_ClassRoutingCorrectness(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetCurrentCPU(401, 0)

	qMax := sched.QMax(s.Capacity.RhoMax(), 1000)
	task := &sched.Task{ID: 401, Weight: 1}
	s.Enable(task)
	ts, _ := s.Tasks.Get(task.ID)
	// Force a starving lag: V - v_e > qMax/4 + 1.
	ts.VE = 0
	s.Global.AddV(int64(qMax)) // lag == qMax > qMax/4+1 for any qMax>0

	require.NoError(t, s.Enqueue(task, 0))
	require.Equal(t, 1, rt.QueueLen(sched.QueueBig))
	require.Equal(t, 0, rt.QueueLen(sched.QueueLittle))
}

// --- Property 2: virtual-time monotonicity across non-correcting events ---

func TestProp_VMonotonicAcrossRunningAndStopping(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetCurrentCPU(501, 0)

	task := &sched.Task{ID: 501, Weight: 1}
	s.Enable(task)
	require.NoError(t, s.Enqueue(task, 0))

	vBefore := s.Global.V()
	s.Running(task)
	require.GreaterOrEqual(t, s.Global.V(), vBefore)

	vBefore = s.Global.V()
	task.SliceRemaining = 200
	s.Stopping(task, true)
	require.GreaterOrEqual(t, s.Global.V(), vBefore)
}

// --- Q_max must be derived from the fixed SLICE, never a task's partial
// remaining slice on re-enqueue ---

func TestEnqueue_QMaxUsesFixedSliceNotTaskRemaining(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetCurrentCPU(701, 0)

	task := &sched.Task{ID: 701, Weight: 1}
	s.Enable(task)
	ts, _ := s.Tasks.Get(task.ID)
	ts.VE = 0

	// A first task enqueued with the scheduler's default (full) slice sets
	// the reference v_d = 0 + Q_max(1000)*100/1 = 100000.
	other := &sched.Task{ID: 702, Weight: 1}
	rt.SetCurrentCPU(702, 0)
	s.Enable(other)
	otherTS, _ := s.Tasks.Get(other.ID)
	otherTS.VE = 0
	require.NoError(t, s.Enqueue(other, 0))

	order := rt.QueueOrder(sched.QueueBig)
	require.Len(t, order, 1)
	require.Equal(t, sched.TaskID(702), order[0])

	// Simulate a runtime re-enqueueing a task that only has a fraction of
	// its slice left: SliceRemaining=200 while the scheduler's fixed SLICE
	// is 1000. Q_max (and therefore v_d) must still be computed from 1000.
	task.SliceRemaining = 200
	require.NoError(t, s.Enqueue(task, 0))

	// Both tasks share weight, v_e and Q_max, so their v_d are equal and the
	// FIFO tie-break keeps 702 ahead of 701. Had Q_max shrunk to match
	// SliceRemaining=200, 701's v_d would be 20000 and it would drain first.
	order = rt.QueueOrder(sched.QueueBig)
	require.Len(t, order, 2)
	require.Equal(t, []sched.TaskID{702, 701}, order)
}

// --- StatsSink wiring: Scheduler activity must reach the agent's StatsMap ---

type fakeStatsSink struct {
	idleHits, enqueues, runningUpdates int
}

func (f *fakeStatsSink) IncrSelectCPUIdleHit() { f.idleHits++ }
func (f *fakeStatsSink) IncrEnqueueEvent()     { f.enqueues++ }
func (f *fakeStatsSink) IncrRunningUpdate()    { f.runningUpdates++ }

func TestScheduler_StatsSinkReceivesCoreActivity(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetIdle(0, true)
	rt.SetCurrentCPU(801, 0)

	stats := &fakeStatsSink{}
	s.Stats = stats

	task := &sched.Task{ID: 801, Weight: 1}
	s.Enable(task)
	require.NoError(t, s.Enqueue(task, 0))
	require.Equal(t, 1, stats.enqueues, "Enqueue must report one enqueue event")

	s.SelectCPU(task, 0, 0)
	require.Equal(t, 1, stats.idleHits, "SelectCPU onto an idle CPU must report one idle hit")

	s.Running(task)
	require.Equal(t, 1, stats.runningUpdates, "Running must report one running update")
}

func TestScheduler_NilStatsSinkIsANoop(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetIdle(0, true)
	rt.SetCurrentCPU(802, 0)

	task := &sched.Task{ID: 802, Weight: 1}
	s.Enable(task)
	require.NoError(t, s.Enqueue(task, 0))
	s.SelectCPU(task, 0, 0)
	s.Running(task)
	// No assertions beyond "did not panic": s.Stats is nil throughout.
}

// --- Property 7: homogeneous reduction to classical EEVDF ordering ---

func TestProp_HomogeneousReduction(t *testing.T) {
	s, rt := newTestScheduler(t, 1000)
	rt.SetCapacity(0, sched.CapacityScale)
	rt.SetCapacity(1, sched.CapacityScale)

	weights := []uint32{2, 1, 4}
	type want struct {
		id sched.TaskID
		vd uint64
	}
	var wants []want
	qMax := sched.QMax(s.Capacity.RhoMax(), 1000)
	for i, w := range weights {
		tk := &sched.Task{ID: sched.TaskID(600 + i), Weight: w}
		rt.SetCurrentCPU(tk.ID, 0)
		s.Enable(tk)
		require.NoError(t, s.Enqueue(tk, 0))
		vd := sched.DivideByWeight(qMax*sched.DeadlineScale, w)
		wants = append(wants, want{id: tk.ID, vd: vd})
	}
	sort.Slice(wants, func(i, j int) bool { return wants[i].vd < wants[j].vd })
	var wantIDs []sched.TaskID
	for _, w := range wants {
		wantIDs = append(wantIDs, w.id)
	}

	// With all CPUs at CAP_SCALE, both cpu0 and cpu1 classify BIG, so the
	// entire population lands in one queue and drains strictly by vd —
	// exactly classical EEVDF's earliest-deadline order.
	order := rt.QueueOrder(sched.QueueBig)
	require.Equal(t, wantIDs, order)
}

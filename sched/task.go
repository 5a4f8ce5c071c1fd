package sched

import "sync"

// TaskState is T(p): the per-task virtual-time pointer and cached weight.
// Only the handler currently processing a given task touches its
// TaskState, so no internal locking is required (spec.md §5: "accessed
// only by handlers receiving that task; no cross-task sharing") — the
// TaskStore below only guards the map of TaskState pointers, not their
// contents.
type TaskState struct {
	VE         uint64 // v_e: eligible virtual time
	Weight     WeightCache
	EnqueuedAt int64 // optional telemetry: last enqueue timestamp
	hasRun     bool  // true once v_e has been set by enable or advanced by stopping
}

// TaskStore is the task-local storage area of spec.md §9: "a task-local
// hash keyed by an opaque task id... allocation on first event,
// deallocation on disable". A sync.Map is the natural fit for
// implementations lacking a true task-local storage primitive, exactly as
// §9 allows.
type TaskStore struct {
	tasks sync.Map // TaskID -> *TaskState
}

// NewTaskStore returns an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{}
}

// GetOrCreate returns the TaskState for id, allocating a zero-value one on
// first access.
func (s *TaskStore) GetOrCreate(id TaskID) *TaskState {
	if v, ok := s.tasks.Load(id); ok {
		return v.(*TaskState)
	}
	ts := &TaskState{}
	actual, _ := s.tasks.LoadOrStore(id, ts)
	return actual.(*TaskState)
}

// Get returns the TaskState for id, or nil if it was never allocated (or
// already released).
func (s *TaskStore) Get(id TaskID) (*TaskState, bool) {
	v, ok := s.tasks.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*TaskState), true
}

// Release frees the per-task storage for id, called from disable.
func (s *TaskStore) Release(id TaskID) {
	s.tasks.Delete(id)
}

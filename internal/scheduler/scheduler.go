// Package scheduler keeps time-stamped simulation tasks in due-horizon
// buckets and releases them in deterministic order as the clock advances.
package scheduler

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
)

// Scheduler exclusively owns every pending task. Near tasks live in
// (due, id)-ordered heaps for the hour, day and month horizons; far tasks
// sit unsorted in month-wide slots until a whole slot falls inside the
// month horizon, so each tick only touches the near buckets.
//
// A Scheduler is not safe for concurrent use; the simulation serialises
// access to it.
type Scheduler struct {
	now    uint64
	nextID TaskID
	index  map[TaskID]*entry
	near   [BucketFar]entryHeap
	far    *farBuckets
}

// New creates an empty scheduler whose current time is now.
func New(now uint64) *Scheduler {
	return &Scheduler{
		now:    now,
		nextID: 1,
		index:  make(map[TaskID]*entry),
		far:    newFarBuckets(),
	}
}

// Now returns the elapsed minute the buckets were last computed for.
func (s *Scheduler) Now() uint64 { return s.now }

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int { return len(s.index) }

// Schedule adds a task and returns its id. The due time may equal the
// current time but not precede it.
func (s *Scheduler) Schedule(p Payload, spec Spec) (TaskID, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: nil payload", ErrInvalidSchedule)
	}
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if spec.DueAt < s.now {
		return 0, fmt.Errorf("%w: due at %d is before current time %d", ErrInvalidSchedule, spec.DueAt, s.now)
	}

	id := s.nextID
	s.nextID++
	e := &entry{task: Task{ID: id, Payload: p, Spec: spec.clone()}}
	s.index[id] = e
	s.place(e)
	return id, nil
}

// Cancel removes a pending task. It reports whether anything was removed;
// unknown, fired and already-cancelled ids are a no-op.
func (s *Scheduler) Cancel(id TaskID) bool {
	e, ok := s.index[id]
	if !ok {
		return false
	}
	s.detach(e)
	delete(s.index, id)
	return true
}

// Pending returns a copy of a pending task.
func (s *Scheduler) Pending(id TaskID) (Task, bool) {
	e, ok := s.index[id]
	if !ok {
		return Task{}, false
	}
	return e.copyTask(), true
}

// BucketOf reports which bucket currently holds a task.
func (s *Scheduler) BucketOf(id TaskID) (Bucket, bool) {
	e, ok := s.index[id]
	if !ok {
		return 0, false
	}
	return e.bucket, true
}

// Counts returns the number of pending tasks per bucket.
func (s *Scheduler) Counts() Counts {
	var c Counts
	for b := BucketHour; b < BucketFar; b++ {
		c[b] = s.near[b].Len()
	}
	c[BucketFar] = s.far.size
	return c
}

// NextDue returns the due time of the earliest pending task.
func (s *Scheduler) NextDue() (uint64, bool) {
	var best *entry
	for b := BucketHour; b < BucketFar; b++ {
		if e := s.near[b].peek(); e != nil && (best == nil || e.before(best)) {
			best = e
		}
	}
	if best == nil {
		best = s.far.earliest()
	}
	if best == nil {
		return 0, false
	}
	return best.task.Spec.DueAt, true
}

// Tasks returns every pending task ordered by due time then id.
func (s *Scheduler) Tasks() []Task {
	out := make([]Task, 0, len(s.index))
	for _, e := range s.index {
		out = append(out, e.copyTask())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Spec.DueAt != out[j].Spec.DueAt {
			return out[i].Spec.DueAt < out[j].Spec.DueAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RebucketOnAdvance moves tasks to finer buckets now that the clock reads
// now. Work is proportional to the tasks promoted. It returns that count.
// Times earlier than the last rebucket are ignored.
func (s *Scheduler) RebucketOnAdvance(now uint64) int {
	if now < s.now {
		return 0
	}
	s.now = now
	moved := 0

	for _, e := range s.far.release(satAdd(now, MonthHorizon)) {
		s.place(e)
		moved++
	}
	for b := BucketMonth; b > BucketHour; b-- {
		h := &s.near[b]
		for {
			top := h.peek()
			if top == nil || s.bucketFor(top.task.Spec.DueAt) == b {
				break
			}
			heap.Pop(h)
			s.place(top)
			moved++
		}
	}
	return moved
}

// DrainDue removes and returns every task due at or before now, ordered by
// due time then id. Recurring tasks are re-armed at due+interval, and
// occurrences that are also due fire in the same call, so a single large
// jump yields the same executions as many small steps.
func (s *Scheduler) DrainDue(now uint64) []Task {
	s.RebucketOnAdvance(now)

	var due []Task
	h := &s.near[BucketHour]
	for {
		top := h.peek()
		if top == nil || top.task.Spec.DueAt > now {
			break
		}
		heap.Pop(h)

		top.task.Runs++
		due = append(due, top.copyTask())

		spec := top.task.Spec
		if spec.exhausted(top.task.Runs) || spec.DueAt > math.MaxUint64-uint64(spec.Recurrence.Interval) {
			delete(s.index, top.task.ID)
			continue
		}
		top.task.Spec.DueAt += uint64(spec.Recurrence.Interval)
		s.place(top)
	}
	return due
}

// bucketFor returns the finest bucket whose horizon covers due. Far tasks
// move as whole slots, so a task inside the month horizon stays far until
// its slot's last minute is inside it too.
func (s *Scheduler) bucketFor(due uint64) Bucket {
	var remaining uint64
	if due > s.now {
		remaining = due - s.now
	}
	switch {
	case remaining <= HourHorizon:
		return BucketHour
	case remaining <= DayHorizon:
		return BucketDay
	case slotEnd(slotOf(due)) <= satAdd(s.now, MonthHorizon):
		return BucketMonth
	default:
		return BucketFar
	}
}

func (s *Scheduler) place(e *entry) {
	b := s.bucketFor(e.task.Spec.DueAt)
	if b == BucketFar {
		s.far.add(e)
		return
	}
	e.bucket = b
	heap.Push(&s.near[b], e)
}

func (s *Scheduler) detach(e *entry) {
	if e.bucket == BucketFar {
		s.far.remove(e)
		return
	}
	heap.Remove(&s.near[e.bucket], e.index)
}

func (e *entry) copyTask() Task {
	t := e.task
	t.Spec = t.Spec.clone()
	return t
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

package scheduler

import "fmt"

// Record is the bucket-independent, storable form of a pending task.
type Record struct {
	ID       TaskID `db:"id" json:"id"`
	Kind     Kind   `db:"kind" json:"kind"`
	Payload  []byte `db:"payload" json:"payload"`
	DueAt    uint64 `db:"due_at" json:"due_at"`
	Interval int64  `db:"interval_minutes" json:"interval,omitempty"` // 0 for one-shot tasks
	Limit    int    `db:"repeat_limit" json:"limit,omitempty"`
	Runs     int    `db:"runs" json:"runs"`
}

// Snapshot is everything needed to rebuild a scheduler. Bucket placement
// is derived again on restore.
type Snapshot struct {
	Now    uint64   `json:"now"`
	NextID TaskID   `json:"next_id"`
	Tasks  []Record `json:"tasks"`
}

// Snapshot captures the pending tasks in (due, id) order.
func (s *Scheduler) Snapshot() (Snapshot, error) {
	snap := Snapshot{Now: s.now, NextID: s.nextID}
	for _, t := range s.Tasks() {
		data, err := EncodePayload(t.Payload)
		if err != nil {
			return Snapshot{}, err
		}
		r := Record{ID: t.ID, Kind: t.Kind(), Payload: data, DueAt: t.Spec.DueAt, Runs: t.Runs}
		if t.Spec.Recurrence != nil {
			r.Interval = t.Spec.Recurrence.Interval
			r.Limit = t.Spec.Recurrence.Limit
		}
		snap.Tasks = append(snap.Tasks, r)
	}
	return snap, nil
}

// Restore rebuilds a scheduler from a snapshot. Tasks already due are kept;
// they fire on the next drain.
func Restore(snap Snapshot) (*Scheduler, error) {
	s := New(snap.Now)
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
	for _, r := range snap.Tasks {
		if _, dup := s.index[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task id %d", ErrInvalidSchedule, r.ID)
		}
		p, err := DecodePayload(r.Kind, r.Payload)
		if err != nil {
			return nil, err
		}
		spec := Spec{DueAt: r.DueAt}
		if r.Interval != 0 {
			spec.Recurrence = &Recurrence{Interval: r.Interval, Limit: r.Limit}
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("task %d: %w", r.ID, err)
		}
		e := &entry{task: Task{ID: r.ID, Payload: p, Spec: spec, Runs: r.Runs}}
		s.index[r.ID] = e
		s.place(e)
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	return s, nil
}

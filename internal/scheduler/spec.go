package scheduler

import (
	"errors"
	"fmt"
)

// ErrInvalidSchedule is returned for past due times or bad recurrences.
var ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

// Recurrence repeats a task every Interval minutes. Limit is the total
// number of executions; zero means unbounded.
type Recurrence struct {
	Interval int64 `json:"interval"`
	Limit    int   `json:"limit,omitempty"`
}

// Spec says when a task is due and how it repeats. A nil Recurrence is a
// one-shot task.
type Spec struct {
	DueAt      uint64      `json:"due_at"`
	Recurrence *Recurrence `json:"recurrence,omitempty"`
}

// At is a one-shot spec due at the given elapsed minute.
func At(dueAt uint64) Spec { return Spec{DueAt: dueAt} }

// Every builds a recurring spec, rejecting non-positive intervals and
// negative limits.
func Every(dueAt uint64, interval int64, limit int) (Spec, error) {
	s := Spec{DueAt: dueAt, Recurrence: &Recurrence{Interval: interval, Limit: limit}}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// MustEvery is Every for fixed recurrences known to be valid.
func MustEvery(dueAt uint64, interval int64, limit int) Spec {
	s, err := Every(dueAt, interval, limit)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks the recurrence fields.
func (s Spec) Validate() error {
	if s.Recurrence == nil {
		return nil
	}
	if s.Recurrence.Interval <= 0 {
		return fmt.Errorf("%w: interval %d must be positive", ErrInvalidSchedule, s.Recurrence.Interval)
	}
	if s.Recurrence.Limit < 0 {
		return fmt.Errorf("%w: repeat limit %d must not be negative", ErrInvalidSchedule, s.Recurrence.Limit)
	}
	return nil
}

// Recurring reports whether s repeats.
func (s Spec) Recurring() bool { return s.Recurrence != nil }

// exhausted reports whether a task that has run runs times should stop.
func (s Spec) exhausted(runs int) bool {
	if s.Recurrence == nil {
		return true
	}
	return s.Recurrence.Limit > 0 && runs >= s.Recurrence.Limit
}

func (s Spec) clone() Spec {
	if s.Recurrence != nil {
		r := *s.Recurrence
		s.Recurrence = &r
	}
	return s
}

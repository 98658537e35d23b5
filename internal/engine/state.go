package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/statecraft/internal/calendar"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/entropy"
	"github.com/talgya/statecraft/internal/industry"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/scripted"
	"github.com/talgya/statecraft/internal/world"
)

// ErrDanglingReference marks a task whose target no longer exists. Executors
// wrap it; the task is skipped and the tick carries on.
var ErrDanglingReference = errors.New("dangling reference")

// Dangling builds an ErrDanglingReference for the named entity.
func Dangling(kind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrDanglingReference, kind, name)
}

// State is the mutable world a tick operates on. Only the running tick
// holds it; executors and hooks receive it explicitly.
type State struct {
	Countries *world.Registry
	Market    *economy.CommodityMarket
	Industry  *industry.Runtime
	RNG       *entropy.Source
	Scripted  *scripted.Book
}

// TickContext describes the tick being run. Every executor and hook of one
// tick sees the same values.
type TickContext struct {
	Tick     uint64 // sequence number, starting at 1
	Previous uint64
	Now      uint64 // elapsed minutes after the advance
	Advanced uint64
	Scale    float64 // Advanced in hours, the unit subsystem rates are quoted in
	Date     calendar.Date
	Crossed  calendar.Crossed
}

// Followup is a task an executor or hook wants scheduled once the tick's
// hooks have finished.
type Followup struct {
	Payload scheduler.Payload
	Spec    scheduler.Spec
}

// After schedules p delay minutes after the current tick.
func (c TickContext) After(delay uint64, p scheduler.Payload) Followup {
	return Followup{Payload: p, Spec: scheduler.At(c.Now + delay)}
}

// Effect is what an executor or hook produced.
type Effect struct {
	Lines     []string
	Followups []Followup
}

// Add appends report lines.
func (e *Effect) Add(lines ...string) { e.Lines = append(e.Lines, lines...) }

// Addf appends one formatted report line.
func (e *Effect) Addf(format string, args ...any) {
	e.Lines = append(e.Lines, fmt.Sprintf(format, args...))
}

// Merge appends another effect.
func (e *Effect) Merge(o Effect) {
	e.Lines = append(e.Lines, o.Lines...)
	e.Followups = append(e.Followups, o.Followups...)
}

// Executor resolves one fired task. Returning an error wrapping
// ErrDanglingReference skips the task; any other error marks it failed.
// Neither aborts the tick.
type Executor func(ctx TickContext, task scheduler.Task, st *State) (Effect, error)

// Stage orders subsystem hooks within a tick.
type Stage int

const (
	StageFiscal Stage = iota
	StageIndustry
	StageDiplomacy
	StageEvents
)

func (s Stage) String() string {
	switch s {
	case StageFiscal:
		return "fiscal"
	case StageIndustry:
		return "industry"
	case StageDiplomacy:
		return "diplomacy"
	case StageEvents:
		return "events"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Subsystem is a policy module plugged into the simulation.
type Subsystem interface {
	Name() string
	Stage() Stage
	// Executors returns the task kinds this subsystem resolves.
	Executors() map[scheduler.Kind]Executor
	// Hook runs once per tick after every due task has executed.
	Hook(ctx TickContext, st *State) Effect
}

// Settler is implemented by subsystems holding per-tick accumulators. Settle
// runs after every hook of the tick has read them.
type Settler interface {
	Settle(st *State)
}

// Bootstrapper is implemented by subsystems that schedule tasks when a new
// simulation starts. It is not called when restoring a snapshot.
type Bootstrapper interface {
	Bootstrap(st *State) []Followup
}

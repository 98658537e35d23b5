package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/statecraft/internal/calendar"
	"github.com/talgya/statecraft/internal/clock"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/entropy"
	"github.com/talgya/statecraft/internal/industry"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/scripted"
	"github.com/talgya/statecraft/internal/world"
)

// Snapshot is the full resumable state of a simulation. Templates and
// subsystems are configuration and are supplied again on restore.
type Snapshot struct {
	RunID     uuid.UUID               `json:"run_id"`
	Tick      uint64                  `json:"tick"`
	Calendar  string                  `json:"calendar"`
	StartDate string                  `json:"start_date"`
	Clock     clock.State             `json:"clock"`
	Scheduler scheduler.Snapshot      `json:"scheduler"`
	Countries []*world.Country        `json:"countries"`
	Market    economy.CommodityMarket `json:"market"`
	Industry  industry.Snapshot       `json:"industry"`
	RNG       []byte                  `json:"rng"`
	Scripted  scripted.State          `json:"scripted"`
}

// Snapshot captures the simulation between ticks. Countries and the market
// are shared with the live simulation; persist them before the next tick.
func (s *Simulation) Snapshot() (Snapshot, error) {
	if s.phase != PhaseIdle {
		return Snapshot{}, ErrTickInProgress
	}
	sched, err := s.sched.Snapshot()
	if err != nil {
		return Snapshot{}, err
	}
	rng, err := s.state.RNG.MarshalBinary()
	if err != nil {
		return Snapshot{}, err
	}
	cal := s.clock.Calendar()
	base := cal.Base()
	return Snapshot{
		RunID:     s.runID,
		Tick:      s.tick,
		Calendar:  cal.Mode().String(),
		StartDate: fmt.Sprintf("%04d-%02d-%02d", base.Year, base.Month, base.Day),
		Clock:     s.clock.State(),
		Scheduler: sched,
		Countries: s.state.Countries.All(),
		Market:    *s.state.Market,
		Industry:  s.state.Industry.Snapshot(),
		RNG:       rng,
		Scripted:  s.state.Scripted.State(),
	}, nil
}

// Restore resumes a simulation from a snapshot. Subsystems are not asked
// to bootstrap; their recurring tasks are already in the snapshot.
func Restore(snap Snapshot, templates []*scripted.Template, subs []Subsystem) (*Simulation, error) {
	cal, err := calendar.Parse(snap.Calendar, snap.StartDate)
	if err != nil {
		return nil, fmt.Errorf("engine: restore: %w", err)
	}
	clk, err := clock.Restore(cal, snap.Clock)
	if err != nil {
		return nil, fmt.Errorf("engine: restore: %w", err)
	}
	sched, err := scheduler.Restore(snap.Scheduler)
	if err != nil {
		return nil, fmt.Errorf("engine: restore: %w", err)
	}
	if sched.Now() != clk.Elapsed() {
		return nil, fmt.Errorf("engine: restore: scheduler at %d but clock at %d", sched.Now(), clk.Elapsed())
	}
	countries, err := world.RestoreRegistry(snap.Countries)
	if err != nil {
		return nil, fmt.Errorf("engine: restore: %w", err)
	}
	rng := &entropy.Source{}
	if err := rng.UnmarshalBinary(snap.RNG); err != nil {
		return nil, fmt.Errorf("engine: restore: %w", err)
	}
	var sectors *industry.Runtime
	if len(snap.Industry.Sectors) == 0 {
		// Saved before sectors were tracked.
		c, err := industry.Builtin()
		if err != nil {
			return nil, err
		}
		sectors = industry.NewRuntime(c)
	} else if sectors, err = industry.Restore(snap.Industry); err != nil {
		return nil, fmt.Errorf("engine: restore: %w", err)
	}
	book, err := scripted.NewBook(templates)
	if err != nil {
		return nil, err
	}
	book.Restore(snap.Scripted)

	s, err := assemble(subs)
	if err != nil {
		return nil, err
	}
	market := snap.Market
	s.runID = snap.RunID
	s.tick = snap.Tick
	s.clock = clk
	s.sched = sched
	s.state = &State{
		Countries: countries,
		Market:    &market,
		Industry:  sectors,
		RNG:       rng,
		Scripted:  book,
	}
	return s, nil
}

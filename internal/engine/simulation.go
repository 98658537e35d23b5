package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

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

// ErrTickInProgress is returned when the simulation is entered while a tick
// is running.
var ErrTickInProgress = errors.New("engine: tick in progress")

// Phase is where the simulation is within a tick.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAdvancing
	PhaseDraining
	PhaseExecuting
	PhaseHooks
	PhaseSettling
)

func (p Phase) String() string {
	return [...]string{"idle", "advancing", "draining", "executing", "hooks", "settling"}[p]
}

// Status is how a fired task ended.
type Status uint8

const (
	StatusExecuted Status = iota
	StatusSkipped         // dangling reference
	StatusFailed
)

func (s Status) String() string {
	return [...]string{"executed", "skipped", "failed"}[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{StatusExecuted, StatusSkipped, StatusFailed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("engine: unknown task status %q", b)
}

// Outcome records one fired task.
type Outcome struct {
	Task   scheduler.TaskID `json:"task"`
	Kind   scheduler.Kind   `json:"kind"`
	DueAt  uint64           `json:"due_at"`
	Run    int              `json:"run"`
	Status Status           `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// TickReport is everything one tick produced, in order.
type TickReport struct {
	Tick     uint64           `json:"tick"`
	Previous uint64           `json:"previous"`
	Elapsed  uint64           `json:"elapsed"`
	Advanced uint64           `json:"advanced"`
	Date     calendar.Date    `json:"date"`
	Crossed  calendar.Crossed `json:"crossed"`
	Lines    []string         `json:"lines"`
	Outcomes []Outcome        `json:"outcomes"`
}

// Fired returns the ids of executed, skipped and failed tasks in firing order.
func (r TickReport) Fired() []scheduler.TaskID {
	ids := make([]scheduler.TaskID, len(r.Outcomes))
	for i, o := range r.Outcomes {
		ids[i] = o.Task
	}
	return ids
}

// Dangling counts tasks skipped for a missing target.
func (r TickReport) Dangling() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusSkipped {
			n++
		}
	}
	return n
}

// Config describes a new simulation.
type Config struct {
	Calendar   calendar.Calendar
	Seed       uint64
	Multiplier string // exact decimal; empty means 1
	Countries  []world.Definition
	Market     *economy.CommodityMarket
	Industry   *industry.Catalog // nil means the built-in sectors
	Templates  []*scripted.Template
	Subsystems []Subsystem
}

// Simulation is the tick orchestrator. It is not safe for concurrent use;
// Engine serialises access when ticks run in the background.
type Simulation struct {
	runID      uuid.UUID
	clock      *clock.Clock
	sched      *scheduler.Scheduler
	state      *State
	subsystems []Subsystem
	executors  map[scheduler.Kind]Executor
	phase      Phase
	tick       uint64
}

// New builds a simulation at elapsed zero and lets subsystems schedule
// their starting tasks.
func New(cfg Config) (*Simulation, error) {
	countries, err := world.NewRegistry(cfg.Countries)
	if err != nil {
		return nil, err
	}
	book, err := scripted.NewBook(cfg.Templates)
	if err != nil {
		return nil, err
	}
	market := cfg.Market
	if market == nil {
		market = economy.DefaultCommodityMarket()
	}
	sectors := cfg.Industry
	if sectors == nil {
		if sectors, err = industry.Builtin(); err != nil {
			return nil, err
		}
	}

	clk := clock.New(cfg.Calendar)
	if cfg.Multiplier != "" {
		if err := clk.SetMultiplierString(cfg.Multiplier); err != nil {
			return nil, err
		}
	}

	s, err := assemble(cfg.Subsystems)
	if err != nil {
		return nil, err
	}
	s.runID = uuid.New()
	s.clock = clk
	s.sched = scheduler.New(0)
	s.state = &State{
		Countries: countries,
		Market:    market,
		Industry:  industry.NewRuntime(sectors),
		RNG:       entropy.New(cfg.Seed),
		Scripted:  book,
	}

	for _, sub := range s.subsystems {
		b, ok := sub.(Bootstrapper)
		if !ok {
			continue
		}
		for _, f := range b.Bootstrap(s.state) {
			if _, err := s.sched.Schedule(f.Payload, f.Spec); err != nil {
				return nil, fmt.Errorf("engine: bootstrap %s: %w", sub.Name(), err)
			}
		}
	}
	return s, nil
}

// assemble orders subsystems by stage and indexes their executors. A kind
// claimed twice is a wiring error.
func assemble(subs []Subsystem) (*Simulation, error) {
	ordered := append([]Subsystem(nil), subs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Stage() < ordered[j].Stage() })

	executors := make(map[scheduler.Kind]Executor)
	owner := make(map[scheduler.Kind]string)
	for _, sub := range ordered {
		for k, ex := range sub.Executors() {
			if prev, dup := owner[k]; dup {
				return nil, fmt.Errorf("engine: %s executor registered by both %s and %s", k, prev, sub.Name())
			}
			executors[k] = ex
			owner[k] = sub.Name()
		}
	}
	return &Simulation{subsystems: ordered, executors: executors}, nil
}

// RunTick advances the clock by requested × multiplier minutes, executes
// every task that came due, runs each subsystem hook once and settles
// per-tick accumulators.
func (s *Simulation) RunTick(requested float64) (TickReport, error) {
	if s.phase != PhaseIdle {
		return TickReport{}, ErrTickInProgress
	}
	defer func() { s.phase = PhaseIdle }()

	s.phase = PhaseAdvancing
	adv, err := s.clock.Advance(requested)
	if err != nil {
		return TickReport{}, err
	}
	s.tick++
	ctx := TickContext{
		Tick:     s.tick,
		Previous: adv.Previous,
		Now:      adv.Elapsed,
		Advanced: adv.Advanced,
		Scale:    float64(adv.Advanced) / calendar.MinutesPerHour,
		Date:     adv.Date,
		Crossed:  adv.Crossed,
	}
	report := TickReport{
		Tick:     s.tick,
		Previous: adv.Previous,
		Elapsed:  adv.Elapsed,
		Advanced: adv.Advanced,
		Date:     adv.Date,
		Crossed:  adv.Crossed,
	}

	s.phase = PhaseDraining
	due := s.sched.DrainDue(adv.Elapsed)

	s.phase = PhaseExecuting
	var followups []Followup
	if len(due) == 0 {
		report.Lines = append(report.Lines, fmt.Sprintf("%d minutes elapsed, no scheduled tasks", adv.Advanced))
	}
	for _, task := range due {
		eff, out := s.execute(ctx, task)
		report.Outcomes = append(report.Outcomes, out)
		report.Lines = append(report.Lines, eff.Lines...)
		followups = append(followups, eff.Followups...)
	}

	s.phase = PhaseHooks
	for _, sub := range s.subsystems {
		eff := sub.Hook(ctx, s.state)
		report.Lines = append(report.Lines, eff.Lines...)
		followups = append(followups, eff.Followups...)
	}

	s.phase = PhaseSettling
	for _, f := range followups {
		if _, err := s.sched.Schedule(f.Payload, f.Spec); err != nil {
			report.Lines = append(report.Lines, fmt.Sprintf("follow-up %s rejected: %v", f.Payload.Kind(), err))
		}
	}
	for _, sub := range s.subsystems {
		if st, ok := sub.(Settler); ok {
			st.Settle(s.state)
		}
	}

	slog.Debug("tick",
		"tick", report.Tick,
		"elapsed", report.Elapsed,
		"advanced", report.Advanced,
		"date", report.Date.String(),
		"fired", len(report.Outcomes),
		"lines", len(report.Lines),
	)
	return report, nil
}

func (s *Simulation) execute(ctx TickContext, task scheduler.Task) (Effect, Outcome) {
	out := Outcome{Task: task.ID, Kind: task.Kind(), DueAt: task.Spec.DueAt, Run: task.Runs}

	ex, ok := s.executors[task.Kind()]
	if !ok {
		out.Status = StatusFailed
		out.Reason = "no executor registered"
		slog.Error("task has no executor", "task", task.ID, "kind", task.Kind().String())
		return Effect{Lines: []string{fmt.Sprintf("%s failed: %s", task, out.Reason)}}, out
	}

	eff, err := ex(ctx, task, s.state)
	switch {
	case err == nil:
		out.Status = StatusExecuted
	case errors.Is(err, ErrDanglingReference):
		out.Status = StatusSkipped
		out.Reason = err.Error()
		slog.Warn("task skipped", "task", task.ID, "kind", task.Kind().String(), "reason", err)
		eff.Lines = append(eff.Lines, fmt.Sprintf("%s skipped: %v", task, err))
	default:
		out.Status = StatusFailed
		out.Reason = err.Error()
		slog.Error("task failed", "task", task.ID, "kind", task.Kind().String(), "error", err)
		eff.Lines = append(eff.Lines, fmt.Sprintf("%s failed: %v", task, err))
	}
	return eff, out
}

// Schedule adds a task between ticks.
func (s *Simulation) Schedule(p scheduler.Payload, spec scheduler.Spec) (scheduler.TaskID, error) {
	if s.phase != PhaseIdle {
		return 0, ErrTickInProgress
	}
	return s.sched.Schedule(p, spec)
}

// ScheduleIn adds a task due delay minutes from now. A positive interval
// makes it recur; limit 0 means forever.
func (s *Simulation) ScheduleIn(p scheduler.Payload, delay uint64, interval int64, limit int) (scheduler.TaskID, error) {
	due := s.clock.Elapsed() + delay
	spec := scheduler.At(due)
	if interval != 0 || limit != 0 {
		var err error
		if spec, err = scheduler.Every(due, interval, limit); err != nil {
			return 0, err
		}
	}
	return s.Schedule(p, spec)
}

// Cancel removes a pending task. Unknown or already finished ids are ignored.
func (s *Simulation) Cancel(id scheduler.TaskID) bool {
	return s.sched.Cancel(id)
}

// SetMultiplier changes the multiplier applied from the next tick on.
func (s *Simulation) SetMultiplier(v string) error {
	if s.phase != PhaseIdle {
		return ErrTickInProgress
	}
	return s.clock.SetMultiplierString(v)
}

// Dissolve removes a country. Tasks still naming it are skipped when they
// fire.
func (s *Simulation) Dissolve(name string) error {
	if s.phase != PhaseIdle {
		return ErrTickInProgress
	}
	c, ok := s.state.Countries.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", world.ErrUnknownCountry, name)
	}
	s.state.Countries.Remove(c.Name)
	slog.Info("country dissolved", "country", c.Name)
	return nil
}

// SetAllocation replaces a country's budget allocation. It applies from the
// next tick's fiscal settlement.
func (s *Simulation) SetAllocation(name string, b economy.BudgetAllocation) error {
	if s.phase != PhaseIdle {
		return ErrTickInProgress
	}
	if err := b.Validate(); err != nil {
		return err
	}
	c, ok := s.state.Countries.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", world.ErrUnknownCountry, name)
	}
	c.Budget = b
	slog.Info("budget allocation changed", "country", c.Name, "total_percent", b.TotalPercent(), "core_minimum", b.CoreMinimum)
	return nil
}

// Subsidize sets the subsidy on the sector named by token, in percent of its
// costs. Tokens are "category:key" or a key unique across categories.
func (s *Simulation) Subsidize(token string, percent float64) (industry.Overview, error) {
	if s.phase != PhaseIdle {
		return industry.Overview{}, ErrTickInProgress
	}
	id, err := s.state.Industry.Catalog().Resolve(token)
	if err != nil {
		return industry.Overview{}, err
	}
	ov, err := s.state.Industry.Subsidize(id, percent)
	if err != nil {
		return industry.Overview{}, err
	}
	slog.Info("sector subsidy changed", "sector", id.String(), "percent", percent)
	return ov, nil
}

// RunID identifies this simulation across saves.
func (s *Simulation) RunID() uuid.UUID { return s.runID }

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 { return s.tick }

// Phase returns the current tick phase.
func (s *Simulation) Phase() Phase { return s.phase }

// Clock exposes the clock for reading.
func (s *Simulation) Clock() *clock.Clock { return s.clock }

// State exposes the world state for reading between ticks.
func (s *Simulation) State() *State { return s.state }

// Tasks returns pending tasks in (due, id) order.
func (s *Simulation) Tasks() []scheduler.Task { return s.sched.Tasks() }

// Pending reports a single pending task.
func (s *Simulation) Pending(id scheduler.TaskID) (scheduler.Task, bool) { return s.sched.Pending(id) }

// Subsystems returns the subsystems in hook order.
func (s *Simulation) Subsystems() []Subsystem { return s.subsystems }

// TimeStatus summarises the clock and the next scheduled task.
type TimeStatus struct {
	Elapsed           uint64           `json:"elapsed"`
	Date              calendar.Date    `json:"date"`
	Multiplier        string           `json:"multiplier"`
	DisplayMultiplier string           `json:"display_multiplier"`
	Tick              uint64           `json:"tick"`
	Pending           int              `json:"pending"`
	Buckets           scheduler.Counts `json:"buckets"`
	NextDueIn         *uint64          `json:"next_due_in,omitempty"`
	CommodityPrice    float64          `json:"commodity_price"`
}

// Status reports the clock and scheduler state.
func (s *Simulation) Status() TimeStatus {
	st := TimeStatus{
		Elapsed:           s.clock.Elapsed(),
		Date:              s.clock.Date(),
		Multiplier:        s.clock.Multiplier().String(),
		DisplayMultiplier: s.clock.DisplayMultiplier().StringFixed(clock.DisplayPlaces),
		Tick:              s.tick,
		Pending:           s.sched.Len(),
		Buckets:           s.sched.Counts(),
		CommodityPrice:    s.state.Market.Price,
	}
	if next, ok := s.sched.NextDue(); ok {
		in := uint64(0)
		if next > st.Elapsed {
			in = next - st.Elapsed
		}
		st.NextDueIn = &in
	}
	return st
}

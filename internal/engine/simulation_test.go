package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/statecraft/internal/calendar"
	"github.com/talgya/statecraft/internal/clock"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/industry"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/world"
)

// stubSystem is a subsystem that records what the orchestrator does to it.
type stubSystem struct {
	stage     Stage
	name      string
	fired     []scheduler.TaskID
	hooks     int
	pending   int // per-tick accumulator, cleared on settle
	settled   []int
	rollLines bool
	onHook    func(ctx TickContext, st *State) Effect
	bootstrap []Followup
}

func (p *stubSystem) Name() string { return p.name }
func (p *stubSystem) Stage() Stage { return p.stage }

func (p *stubSystem) Executors() map[scheduler.Kind]Executor {
	if p.stage != StageEvents {
		return nil
	}
	record := func(ctx TickContext, task scheduler.Task, st *State) (Effect, error) {
		p.fired = append(p.fired, task.ID)
		p.pending++
		return Effect{Lines: []string{fmt.Sprintf("%s at %d", task, task.Spec.DueAt)}}, nil
	}
	return map[scheduler.Kind]Executor{
		scheduler.KindUnrestCheck:      record,
		scheduler.KindPolicyResolution: record,
		scheduler.KindDiplomaticMission: func(ctx TickContext, task scheduler.Task, st *State) (Effect, error) {
			m := task.Payload.(scheduler.DiplomaticMission)
			if _, ok := st.Countries.Get(m.Country); !ok {
				return Effect{}, Dangling("country", m.Country)
			}
			return record(ctx, task, st)
		},
		scheduler.KindMarketShock: func(ctx TickContext, task scheduler.Task, st *State) (Effect, error) {
			return Effect{}, fmt.Errorf("market closed")
		},
		scheduler.KindDiplomaticPulse: func(ctx TickContext, task scheduler.Task, st *State) (Effect, error) {
			// Lands a mission half a day later.
			return Effect{Followups: []Followup{ctx.After(720, scheduler.DiplomaticMission{Country: "Asteria", Partner: "Borealis", Delta: 3})}}, nil
		},
	}
}

func (p *stubSystem) Hook(ctx TickContext, st *State) Effect {
	p.hooks++
	var eff Effect
	if p.rollLines {
		eff.Addf("%s roll %.6f", p.name, st.RNG.Float())
	}
	if p.onHook != nil {
		eff.Merge(p.onHook(ctx, st))
	}
	return eff
}

func (p *stubSystem) Settle(*State) {
	p.settled = append(p.settled, p.pending)
	p.pending = 0
}

func (p *stubSystem) Bootstrap(*State) []Followup { return p.bootstrap }

func definitions() []world.Definition {
	return []world.Definition{
		{Name: "Asteria", GDP: 1500, Stability: 60, Approval: 50, Military: 50, Resources: 70, Budget: 400},
		{Name: "Borealis", GDP: 1300, Stability: 55, Approval: 45, Military: 60, Resources: 65, Budget: 380},
	}
}

func newSim(t *testing.T, subs ...Subsystem) *Simulation {
	t.Helper()
	sim, err := New(Config{
		Calendar:   calendar.Default(),
		Seed:       42,
		Countries:  definitions(),
		Subsystems: subs,
	})
	require.NoError(t, err)
	return sim
}

func TestScenarioOneShotAndRecurring(t *testing.T) {
	t.Parallel()

	p := &stubSystem{stage: StageEvents, name: "events"}
	sim := newSim(t, p)

	a, err := sim.Schedule(scheduler.UnrestCheck{}, scheduler.At(5))
	require.NoError(t, err)
	b, err := sim.Schedule(scheduler.PolicyResolution{}, scheduler.MustEvery(3, 3, 2))
	require.NoError(t, err)

	report, err := sim.RunTick(10)
	require.NoError(t, err)

	assert.EqualValues(t, 10, report.Elapsed)
	assert.Equal(t, []scheduler.TaskID{b, a, b}, report.Fired())
	assert.Equal(t, []string{
		fmt.Sprintf("task #%d (policy-resolution) at 3", b),
		fmt.Sprintf("task #%d (unrest-check) at 5", a),
		fmt.Sprintf("task #%d (policy-resolution) at 6", b),
	}, report.Lines)
	assert.Equal(t, []int{1, 1, 2}, []int{report.Outcomes[0].Run, report.Outcomes[1].Run, report.Outcomes[2].Run})

	_, pending := sim.Pending(b)
	assert.False(t, pending)
	assert.Empty(t, sim.Tasks())
	assert.Equal(t, 1, p.hooks)
	assert.Equal(t, []int{3}, p.settled)
}

func TestNoTasksLine(t *testing.T) {
	t.Parallel()

	sim := newSim(t, &stubSystem{stage: StageEvents, name: "events"})
	report, err := sim.RunTick(30)
	require.NoError(t, err)
	assert.Equal(t, []string{"30 minutes elapsed, no scheduled tasks"}, report.Lines)
	assert.EqualValues(t, 1, report.Tick)
}

func TestRunTickRejectsBadAdvance(t *testing.T) {
	t.Parallel()

	p := &stubSystem{stage: StageEvents, name: "events"}
	sim := newSim(t, p)
	for _, m := range []float64{0, -5} {
		_, err := sim.RunTick(m)
		require.ErrorIs(t, err, clock.ErrInvalidAdvance)
	}
	assert.Zero(t, sim.Tick())
	assert.Zero(t, p.hooks)
	assert.Equal(t, PhaseIdle, sim.Phase())

	require.ErrorIs(t, sim.SetMultiplier("0"), clock.ErrInvalidMultiplier)
	_, err := sim.Schedule(scheduler.UnrestCheck{}, scheduler.Spec{DueAt: 5, Recurrence: &scheduler.Recurrence{Interval: 0}})
	require.ErrorIs(t, err, scheduler.ErrInvalidSchedule)
}

func TestLargeJumpMatchesSmallTicks(t *testing.T) {
	t.Parallel()

	build := func() (*Simulation, *stubSystem) {
		p := &stubSystem{stage: StageEvents, name: "events"}
		sim := newSim(t, p)
		rng := rand.New(rand.NewPCG(7, 7))
		for i := 0; i < 100; i++ {
			_, err := sim.Schedule(scheduler.UnrestCheck{}, scheduler.At(1+rng.Uint64N(1000)))
			require.NoError(t, err)
		}
		return sim, p
	}

	big, bigSys := build()
	_, err := big.RunTick(1000)
	require.NoError(t, err)

	small, smallSys := build()
	for i := 0; i < 1000; i++ {
		_, err := small.RunTick(1)
		require.NoError(t, err)
	}

	sorted := func(ids []scheduler.TaskID) []scheduler.TaskID {
		out := append([]scheduler.TaskID(nil), ids...)
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
	require.Len(t, bigSys.fired, 100)
	assert.Equal(t, sorted(bigSys.fired), sorted(smallSys.fired))
	assert.Equal(t, big.Clock().Elapsed(), small.Clock().Elapsed())
	assert.Empty(t, big.Tasks())
	assert.Empty(t, small.Tasks())
}

func TestDeterministicReports(t *testing.T) {
	t.Parallel()

	run := func() []byte {
		p := &stubSystem{stage: StageEvents, name: "events", rollLines: true}
		sim := newSim(t, p, &stubSystem{stage: StageFiscal, name: "fiscal", rollLines: true})
		_, err := sim.Schedule(scheduler.UnrestCheck{}, scheduler.MustEvery(45, 90, 0))
		require.NoError(t, err)
		require.NoError(t, sim.SetMultiplier("1.75"))

		var reports []TickReport
		for _, m := range []float64{17, 60, 240, 1, 1440, 33} {
			r, err := sim.RunTick(m)
			require.NoError(t, err)
			reports = append(reports, r)
		}
		data, err := json.Marshal(reports)
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, string(run()), string(run()))
}

func TestHooksRunInStageOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(stage Stage, name string) *stubSystem {
		return &stubSystem{stage: stage, name: name, onHook: func(TickContext, *State) Effect {
			order = append(order, name)
			return Effect{}
		}}
	}
	sim := newSim(t, mk(StageEvents, "events"), mk(StageDiplomacy, "diplomacy"), mk(StageFiscal, "fiscal"), mk(StageIndustry, "industry"))
	var names []string
	for _, sub := range sim.Subsystems() {
		names = append(names, sub.Name())
	}
	assert.Equal(t, []string{"fiscal", "industry", "diplomacy", "events"}, names)

	_, err := sim.RunTick(60)
	require.NoError(t, err)
	assert.Equal(t, []string{"fiscal", "industry", "diplomacy", "events"}, order)
}

func TestDanglingAndFailedTasksDoNotAbort(t *testing.T) {
	t.Parallel()

	p := &stubSystem{stage: StageEvents, name: "events"}
	sim := newSim(t, p)

	mission, err := sim.Schedule(scheduler.DiplomaticMission{Country: "Borealis", Partner: "Asteria"}, scheduler.MustEvery(10, 10, 0))
	require.NoError(t, err)
	shock, err := sim.Schedule(scheduler.MarketShock{Factor: 1.2}, scheduler.At(12))
	require.NoError(t, err)
	orphan, err := sim.Schedule(scheduler.ScriptedEventCheck{Template: "x"}, scheduler.At(15))
	require.NoError(t, err)
	check, err := sim.Schedule(scheduler.UnrestCheck{}, scheduler.At(20))
	require.NoError(t, err)

	require.NoError(t, sim.Dissolve("borealis"))
	require.ErrorIs(t, sim.Dissolve("borealis"), world.ErrUnknownCountry)

	report, err := sim.RunTick(25)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 5)
	byStatus := map[Status][]scheduler.TaskID{}
	for _, o := range report.Outcomes {
		byStatus[o.Status] = append(byStatus[o.Status], o.Task)
	}
	assert.Equal(t, []scheduler.TaskID{mission, mission}, byStatus[StatusSkipped])
	assert.Equal(t, []scheduler.TaskID{shock, orphan}, byStatus[StatusFailed])
	assert.Equal(t, []scheduler.TaskID{check}, byStatus[StatusExecuted])
	assert.Equal(t, 2, report.Dangling())
	assert.Contains(t, report.Outcomes[0].Reason, "Borealis")
	assert.Equal(t, 1, p.hooks)

	// The recurring mission stays pending; cancelling it twice is harmless.
	assert.True(t, sim.Cancel(mission))
	assert.False(t, sim.Cancel(mission))
	assert.False(t, sim.Cancel(check))
}

func TestFollowupsAreScheduledAfterHooks(t *testing.T) {
	t.Parallel()

	p := &stubSystem{stage: StageEvents, name: "events"}
	p.onHook = func(ctx TickContext, st *State) Effect {
		return Effect{Followups: []Followup{
			{Payload: scheduler.UnrestCheck{}, Spec: scheduler.At(ctx.Now - 1)},
		}}
	}
	sim := newSim(t, p)
	_, err := sim.Schedule(scheduler.DiplomaticPulse{}, scheduler.At(30))
	require.NoError(t, err)

	report, err := sim.RunTick(60)
	require.NoError(t, err)
	assert.Contains(t, report.Lines, "follow-up unrest-check rejected: scheduler: invalid schedule: due at 59 is before current time 60")

	tasks := sim.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, scheduler.KindDiplomaticMission, tasks[0].Kind())
	assert.EqualValues(t, 780, tasks[0].Spec.DueAt)
}

func TestNestedTickRejected(t *testing.T) {
	t.Parallel()

	var sim *Simulation
	var nested error
	p := &stubSystem{stage: StageEvents, name: "events", onHook: func(TickContext, *State) Effect {
		_, nested = sim.RunTick(1)
		return Effect{}
	}}
	sim = newSim(t, p)
	_, err := sim.RunTick(5)
	require.NoError(t, err)
	require.ErrorIs(t, nested, ErrTickInProgress)
	assert.EqualValues(t, 1, sim.Tick())
	assert.EqualValues(t, 5, sim.Clock().Elapsed())
}

func TestSetAllocation(t *testing.T) {
	t.Parallel()

	var sim *Simulation
	var midTick error
	p := &stubSystem{stage: StageEvents, name: "events", onHook: func(TickContext, *State) Effect {
		midTick = sim.SetAllocation("Asteria", economy.DefaultBudget())
		return Effect{}
	}}
	sim = newSim(t, p)

	alloc := economy.BudgetAllocation{Infrastructure: 12, Military: 2, Research: 9}
	require.NoError(t, sim.SetAllocation("asteria", alloc))
	c, _ := sim.State().Countries.Get("Asteria")
	assert.Equal(t, alloc, c.Budget)

	require.ErrorIs(t, sim.SetAllocation("Asteria", economy.BudgetAllocation{Welfare: 120}), economy.ErrInvalidAllocation)
	require.ErrorIs(t, sim.SetAllocation("Nowhere", alloc), world.ErrUnknownCountry)
	assert.Equal(t, alloc, c.Budget)

	_, err := sim.RunTick(60)
	require.NoError(t, err)
	require.ErrorIs(t, midTick, ErrTickInProgress)
	assert.Equal(t, alloc, c.Budget)
}

func TestSubsidizeSector(t *testing.T) {
	t.Parallel()

	sim := newSim(t)
	ov, err := sim.Subsidize("steel", 30)
	require.NoError(t, err)
	assert.Equal(t, industry.ID{Category: industry.Secondary, Key: "steel"}, ov.ID)
	assert.InDelta(t, 30, ov.SubsidyPercent, 1e-9)

	_, err = sim.Subsidize("primary:steel", 30)
	require.ErrorIs(t, err, industry.ErrUnknownSector)
	_, err = sim.Subsidize("steel", 120)
	require.ErrorIs(t, err, industry.ErrInvalidSubsidy)

	snap, err := sim.Snapshot()
	require.NoError(t, err)
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	restored, err := Restore(decoded, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, sim.State().Industry.Overview(), restored.State().Industry.Overview())
}

func TestNewRejectsDuplicateExecutors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{
		Calendar:   calendar.Default(),
		Countries:  definitions(),
		Subsystems: []Subsystem{&stubSystem{stage: StageEvents, name: "a"}, &stubSystem{stage: StageEvents, name: "b"}},
	})
	require.Error(t, err)
}

func TestBootstrapSchedulesStartingTasks(t *testing.T) {
	t.Parallel()

	p := &stubSystem{stage: StageEvents, name: "events", bootstrap: []Followup{
		{Payload: scheduler.UnrestCheck{}, Spec: scheduler.MustEvery(240, 240, 0)},
	}}
	sim := newSim(t, p)
	require.Len(t, sim.Tasks(), 1)

	st := sim.Status()
	require.NotNil(t, st.NextDueIn)
	assert.EqualValues(t, 240, *st.NextDueIn)
	assert.Equal(t, "1.00", st.DisplayMultiplier)
	assert.Equal(t, 1, st.Pending)
}

func TestSnapshotRestoreContinuesIdentically(t *testing.T) {
	t.Parallel()

	build := func() *Simulation {
		sim := newSim(t, &stubSystem{stage: StageEvents, name: "events", rollLines: true})
		_, err := sim.Schedule(scheduler.UnrestCheck{}, scheduler.MustEvery(50, 75, 0))
		require.NoError(t, err)
		_, err = sim.Schedule(scheduler.PolicyResolution{}, scheduler.At(100_000))
		require.NoError(t, err)
		require.NoError(t, sim.SetMultiplier("1.333"))
		return sim
	}

	live := build()
	for i := 0; i < 5; i++ {
		_, err := live.RunTick(37)
		require.NoError(t, err)
	}
	snap, err := live.Snapshot()
	require.NoError(t, err)

	// Through JSON so the restored world shares nothing with the live one.
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored, err := Restore(decoded, nil, []Subsystem{&stubSystem{stage: StageEvents, name: "events", rollLines: true}})
	require.NoError(t, err)
	assert.Equal(t, live.RunID(), restored.RunID())
	assert.Equal(t, live.Status(), restored.Status())

	for i := 0; i < 5; i++ {
		a, err := live.RunTick(37)
		require.NoError(t, err)
		b, err := restored.RunTick(37)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestEngineLoop(t *testing.T) {
	t.Parallel()

	sim := newSim(t, &stubSystem{stage: StageEvents, name: "events"})
	e := NewEngine(sim)
	e.Configure(time.Millisecond, 15, 1)

	ticks := make(chan TickReport, 16)
	e.OnTick = func(r TickReport) {
		select {
		case ticks <- r:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(5 * time.Second):
			t.Fatal("engine did not tick")
		}
	}
	cancel()
	require.NoError(t, <-done)

	var elapsed uint64
	require.NoError(t, e.Do(func(s *Simulation) error {
		elapsed = s.Clock().Elapsed()
		return nil
	}))
	assert.GreaterOrEqual(t, elapsed, uint64(45))
	assert.Zero(t, elapsed%15)
	assert.NotEmpty(t, e.Lines(2))
	assert.LessOrEqual(t, len(e.Lines(2)), 2)
}

func TestEngineSpeedUpTakesEffectAtOnce(t *testing.T) {
	t.Parallel()

	e := NewEngine(newSim(t, &stubSystem{stage: StageEvents, name: "events"}))
	e.Configure(10*time.Millisecond, 15, 0.0001) // 100s between ticks

	ticks := make(chan TickReport, 16)
	e.OnTick = func(r TickReport) {
		select {
		case ticks <- r:
		default:
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	next := func(msg string) {
		t.Helper()
		select {
		case <-ticks:
		case <-time.After(5 * time.Second):
			t.Fatal(msg)
		}
	}
	next("first tick fires immediately")

	e.SetSpeed(10)
	next("speed-up did not cut the pending wait")

	e.Configure(time.Hour, 0, 1)
	time.Sleep(20 * time.Millisecond)
	for len(ticks) > 0 {
		<-ticks
	}
	select {
	case <-ticks:
		t.Fatal("slow-down ticked early")
	case <-time.After(50 * time.Millisecond):
	}

	e.Configure(time.Millisecond, 0, -1)
	next("shorter interval did not cut the pending wait")

	cancel()
	require.NoError(t, <-done)
}

func TestEngineStepKeepsRecentLines(t *testing.T) {
	t.Parallel()

	e := NewEngine(newSim(t, &stubSystem{stage: StageEvents, name: "events"}))
	for i := 0; i < MaxReportLines+10; i++ {
		_, err := e.Step(1)
		require.NoError(t, err)
	}
	lines := e.Lines(0)
	assert.Len(t, lines, MaxReportLines)
	assert.Equal(t, "1 minutes elapsed, no scheduled tasks", lines[len(lines)-1])

	e.SetSpeed(-1)
	assert.Equal(t, 1.0, e.Speed())
	e.SetSpeed(0)
	assert.Zero(t, e.Speed())
}

package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/statecraft/internal/api"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scenario"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/systems"
)

const adminKey = "monitor-key"

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	sc, err := scenario.Default()
	require.NoError(t, err)
	tpls, err := sc.LoadTemplates()
	require.NoError(t, err)
	sim, err := engine.New(engine.Config{
		Calendar:   sc.Calendar,
		Seed:       sc.Seed,
		Countries:  sc.Countries,
		Market:     sc.Market,
		Templates:  tpls,
		Subsystems: systems.Default(),
	})
	require.NoError(t, err)
	srv := &api.Server{Eng: engine.NewEngine(sim), AdminKey: adminKey}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestTriageRanksCountries(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{
		Status: Status{TimeStatus: engine.TimeStatus{Elapsed: 50}},
		Countries: []CountryInfo{
			{Name: "Calm", GDP: 1000, Debt: 100, Cash: 50, Stability: 70, Approval: 60, Rating: "A"},
			{Name: "Restless", GDP: 1000, Debt: 300, Cash: 50, Stability: 30, Approval: 50, Rating: "BB"},
			{Name: "Failing", GDP: 500, Debt: 1100, Cash: 10, Stability: 10, Approval: 40, Rating: "D"},
			{Name: "Indebted", GDP: 1000, Debt: 900, Cash: -5, Stability: 60, Approval: 55, Rating: "BBB"},
		},
		Tasks: []TaskInfo{{ID: 1, Kind: scheduler.KindUnrestCheck, DueAt: 100}},
	}

	h := Triage(snap)
	assert.Equal(t, Critical, h.Level)
	assert.False(t, h.Idle)
	assert.Zero(t, h.Overdue)

	require.Len(t, h.Countries, 4)
	names := []string{h.Countries[0].Name, h.Countries[1].Name, h.Countries[2].Name, h.Countries[3].Name}
	assert.Equal(t, []string{"Failing", "Restless", "Indebted", "Calm"}, names)

	assert.Equal(t, Critical, h.Countries[0].Level)
	assert.Equal(t, []string{"collapsing stability", "default risk (D)", "heavy debt"}, h.Countries[0].Signals)
	assert.InDelta(t, 2.2, h.Countries[0].DebtRatio, 1e-9)

	assert.Equal(t, Warning, h.Countries[1].Level)
	assert.Equal(t, []string{"unrest"}, h.Countries[1].Signals)

	assert.Equal(t, Watch, h.Countries[2].Level)
	assert.Equal(t, []string{"heavy debt", "overdrawn treasury"}, h.Countries[2].Signals)

	assert.Equal(t, Healthy, h.Countries[3].Level)
	assert.Empty(t, h.Countries[3].Signals)
}

func TestTriageIdleAndOverdue(t *testing.T) {
	t.Parallel()

	calm := CountryInfo{Name: "Calm", GDP: 1000, Stability: 70, Approval: 60, Rating: "AA"}

	idle := Triage(&Snapshot{Countries: []CountryInfo{calm}})
	assert.True(t, idle.Idle)
	assert.Equal(t, Watch, idle.Level)

	overdue := Triage(&Snapshot{
		Status:    Status{TimeStatus: engine.TimeStatus{Elapsed: 500}},
		Countries: []CountryInfo{calm},
		Tasks:     []TaskInfo{{ID: 3, DueAt: 480}, {ID: 4, DueAt: 600}},
	})
	assert.Equal(t, 1, overdue.Overdue)
	assert.Equal(t, Watch, overdue.Level)

	healthy := Triage(&Snapshot{Countries: []CountryInfo{calm}, Tasks: []TaskInfo{{ID: 1, DueAt: 60}}})
	assert.Equal(t, Healthy, healthy.Level)
	assert.Equal(t, "HEALTHY", healthy.Level.String())
}

func TestObserveAndAct(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	ctx := context.Background()
	obs := NewObserver(ts.URL + "/")
	act := NewActor(ts.URL, adminKey)

	snap, err := obs.Observe(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Countries, 4)
	assert.Equal(t, "Asteria", snap.Countries[0].Name)
	assert.Equal(t, 4, snap.Status.Countries)
	assert.Zero(t, snap.Status.Elapsed)
	assert.Len(t, snap.Tasks, snap.Status.Pending)
	assert.NotEmpty(t, snap.Status.RunID)

	report, err := act.Tick(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report.Tick)
	assert.Equal(t, uint64(60), report.Elapsed)

	display, err := act.SetMultiplier(ctx, "1.5")
	require.NoError(t, err)
	assert.Equal(t, "1.50", display)

	_, err = act.SetMultiplier(ctx, "-2")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)

	require.NoError(t, act.SetSpeed(ctx, 0))

	id, err := act.Schedule(ctx, ScheduleRequest{Payload: scheduler.MarketShock{Factor: 1.1}, Delay: 30})
	require.NoError(t, err)
	assert.NotZero(t, id)

	after, err := obs.Observe(ctx)
	require.NoError(t, err)
	assert.Len(t, after.Tasks, len(snap.Tasks)+1)

	require.NoError(t, act.Cancel(ctx, id))
	err = act.Cancel(ctx, id)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)

	require.NoError(t, act.SetAllocation(ctx, "Borealis", economy.BudgetAllocation{Infrastructure: 4, Welfare: 4, CoreMinimum: true}))
	err = act.SetAllocation(ctx, "Borealis", economy.BudgetAllocation{Military: -1})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)

	ov, err := act.Subsidize(ctx, "energy:electricity", 15)
	require.NoError(t, err)
	assert.Equal(t, "Electricity", ov.Name)
	assert.InDelta(t, 15, ov.SubsidyPercent, 1e-9)

	require.NoError(t, act.Dissolve(ctx, "Asteria"))
	after, err = obs.Observe(ctx)
	require.NoError(t, err)
	assert.Len(t, after.Countries, 3)

	err = act.Snapshot(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Code)

	lines, err := obs.Reports(ctx, 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(lines), 5)
}

func TestActorRejectedWithoutKey(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	_, err := NewActor(ts.URL, "wrong").Tick(context.Background(), 60)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
}

func TestWatcherReportsHealth(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *WorldHealth, 1)
	w := &Watcher{
		Observer: NewObserver(ts.URL),
		Interval: time.Hour,
		OnHealth: func(_ *Snapshot, h *WorldHealth) {
			select {
			case got <- h:
			default:
			}
			cancel()
		},
	}
	require.NoError(t, w.Run(ctx))

	select {
	case h := <-got:
		assert.Len(t, h.Countries, 4)
		assert.False(t, h.Idle)
	default:
		t.Fatal("watcher returned without an observation")
	}
}

package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scheduler"
)

func TestObserveTick(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.ObserveTick(engine.TickReport{
		Tick:     1,
		Elapsed:  120,
		Advanced: 120,
		Lines:    []string{"a", "b", "c"},
		Outcomes: []engine.Outcome{
			{Task: 1, Kind: scheduler.KindUnrestCheck, Status: engine.StatusExecuted},
			{Task: 2, Kind: scheduler.KindDiplomaticMission, Status: engine.StatusSkipped},
			{Task: 3, Kind: scheduler.KindUnrestCheck, Status: engine.StatusExecuted},
		},
	})
	r.ObserveTick(engine.TickReport{Tick: 2, Elapsed: 180, Advanced: 60})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks))
	assert.Equal(t, 180.0, testutil.ToFloat64(r.simMinutes))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.reportLines))
	assert.Equal(t, 180.0, testutil.ToFloat64(r.elapsed))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.tasks.WithLabelValues(scheduler.KindUnrestCheck.String(), "executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tasks.WithLabelValues(scheduler.KindDiplomaticMission.String(), "skipped")))

	r.ObserveStatus(engine.TimeStatus{Elapsed: 200, Pending: 7, CommodityPrice: 131.5, DisplayMultiplier: "1.33"})
	assert.Equal(t, 7.0, testutil.ToFloat64(r.pending))
	assert.Equal(t, 131.5, testutil.ToFloat64(r.price))
	assert.Equal(t, 1.33, testutil.ToFloat64(r.multiplier))

	n, err := testutil.GatherAndCount(r.Registry(), "statecraft_ticks_total", "statecraft_pending_tasks")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMiddlewareAndHandler(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	router := chi.NewRouter()
	router.Use(rec.Middleware)
	router.Get("/countries/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", rec.Handler())

	for _, name := range []string{"asteria", "borealis"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/countries/"+name, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.httpRequests.WithLabelValues("GET", "/countries/{name}", "404")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `statecraft_api_requests_total{method="GET",route="/countries/{name}",status="404"} 2`)
	assert.Contains(t, string(body), "statecraft_ticks_total 0")
}

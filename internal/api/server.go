// Package api provides the HTTP control surface for a running simulation.
// GET endpoints are public (read-only observation).
// Mutating endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talgya/statecraft/internal/clock"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/industry"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/telemetry"
	"github.com/talgya/statecraft/internal/world"
)

// Request limits.
const (
	maxBodyBytes = 1 << 20
	maxSpeed     = 1000
	defaultLines = 100
)

// Snapshotter persists a simulation on demand.
type Snapshotter interface {
	SaveSimulation(sim *engine.Simulation) error
}

// Server serves the simulation over HTTP.
type Server struct {
	Eng        *engine.Engine
	DB         Snapshotter         // nil disables POST /snapshot
	Metrics    *telemetry.Recorder // nil disables /metrics
	Limiter    *RateLimiter        // nil disables rate limiting
	AdminKey   string              // empty disables admin endpoints
	Origins    []string            // extra CORS origins besides localhost dev servers
	DateFormat string              // strftime layout for status dates
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware)
	}
	r.Use(corsMiddleware(s.Origins))

	if s.Metrics != nil {
		r.Handle("/metrics", s.metricsHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.Limiter != nil {
			r.Use(s.Limiter.Middleware)
		}

		r.Get("/status", s.handleStatus)
		r.Get("/countries", s.handleCountries)
		r.Get("/countries/{name}", s.handleCountry)
		r.Get("/tasks", s.handleTasks)
		r.Get("/reports", s.handleReports)
		r.Get("/industry", s.handleIndustry)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/tick", s.handleTick)
			r.Post("/multiplier", s.handleMultiplier)
			r.Post("/speed", s.handleSpeed)
			r.Post("/tasks", s.handleSchedule)
			r.Delete("/tasks/{id}", s.handleCancel)
			r.Delete("/countries/{name}", s.handleDissolve)
			r.Post("/countries/{name}/allocation", s.handleAllocation)
			r.Post("/industry/{sector}/subsidy", s.handleSubsidy)
			r.Post("/snapshot", s.handleSnapshot)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "metrics", s.Metrics != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()
	for {
		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-sweep.C:
			if s.Limiter != nil {
				s.Limiter.Sweep(10 * time.Minute)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			slog.Info("HTTP API stopping")
			return srv.Shutdown(shutdownCtx)
		}
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(extra []string) func(http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, o := range extra {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed[origin] || allowed["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly requires the bearer token on every request it wraps.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled (no STATECRAFT_ADMIN_KEY set)")
			return
		}
		if !s.checkBearerToken(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsHandler() http.Handler {
	h := s.Metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.Eng.Do(func(sim *engine.Simulation) error {
			s.Metrics.ObserveStatus(sim.Status())
			return nil
		})
		h.ServeHTTP(w, r)
	})
}

type statusView struct {
	engine.TimeStatus
	RunID     string  `json:"run_id"`
	DateText  string  `json:"date_text"`
	Speed     float64 `json:"speed"`
	Countries int     `json:"countries"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var out statusView
	_ = s.Eng.Do(func(sim *engine.Simulation) error {
		out.TimeStatus = sim.Status()
		out.RunID = sim.RunID().String()
		out.Countries = sim.State().Countries.Len()
		return nil
	})
	layout := s.DateFormat
	if layout == "" {
		layout = "%Y-%m-%d %H:%M"
	}
	out.DateText = out.Date.Format(layout)
	out.Speed = s.Eng.Speed()
	writeJSON(w, http.StatusOK, out)
}

type countrySummary struct {
	Name       string  `json:"name"`
	Government string  `json:"government"`
	GDP        float64 `json:"gdp"`
	Stability  int     `json:"stability"`
	Approval   int     `json:"approval"`
	Military   int     `json:"military"`
	Resources  int     `json:"resources"`
	Cash       float64 `json:"cash"`
	Debt       float64 `json:"debt"`
	Rating     string  `json:"rating"`
}

func summarize(c *world.Country) countrySummary {
	return countrySummary{
		Name:       c.Name,
		Government: c.Government,
		GDP:        c.GDP,
		Stability:  c.Stability,
		Approval:   c.Approval,
		Military:   c.Military,
		Resources:  c.Resources,
		Cash:       c.Fiscal.Cash,
		Debt:       c.Fiscal.Debt,
		Rating:     c.Fiscal.Rating.String(),
	}
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	var out []countrySummary
	_ = s.Eng.Do(func(sim *engine.Simulation) error {
		for _, c := range sim.State().Countries.All() {
			out = append(out, summarize(c))
		}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

type countryDetail struct {
	world.Country
	RatingName string `json:"rating_name"`
}

func (s *Server) handleCountry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var out countryDetail
	err := s.Eng.Do(func(sim *engine.Simulation) error {
		c, err := sim.State().Countries.Find(name)
		if err != nil {
			return err
		}
		out.Country = *c
		out.Relations = maps.Clone(c.Relations)
		out.RatingName = c.Fiscal.Rating.String()
		return nil
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type taskView struct {
	ID       scheduler.TaskID  `json:"id"`
	Kind     scheduler.Kind    `json:"kind"`
	Payload  scheduler.Payload `json:"payload"`
	DueAt    uint64            `json:"due_at"`
	DueIn    uint64            `json:"due_in"`
	Interval int64             `json:"interval,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Runs     int               `json:"runs"`
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	out := []taskView{}
	_ = s.Eng.Do(func(sim *engine.Simulation) error {
		now := sim.Clock().Elapsed()
		for _, t := range sim.Tasks() {
			v := taskView{ID: t.ID, Kind: t.Kind(), Payload: t.Payload, DueAt: t.Spec.DueAt, Runs: t.Runs}
			if t.Spec.DueAt > now {
				v.DueIn = t.Spec.DueAt - now
			}
			if rec := t.Spec.Recurrence; rec != nil {
				v.Interval, v.Limit = rec.Interval, rec.Limit
			}
			out = append(out, v)
		}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	n := defaultLines
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = v
	}
	lines := s.Eng.Lines(n)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes float64 `json:"minutes"`
	}
	if !decode(w, r, &req) {
		return
	}
	report, err := s.Eng.Step(req.Minutes)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleMultiplier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Multiplier string `json:"multiplier"`
	}
	if !decode(w, r, &req) {
		return
	}
	var precise, display string
	err := s.Eng.Do(func(sim *engine.Simulation) error {
		if err := sim.SetMultiplier(req.Multiplier); err != nil {
			return err
		}
		st := sim.Status()
		precise, display = st.Multiplier, st.DisplayMultiplier
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	slog.Info("multiplier changed", "multiplier", precise)
	writeJSON(w, http.StatusOK, map[string]string{"multiplier": precise, "display_multiplier": display})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Speed < 0 || req.Speed > maxSpeed {
		writeError(w, http.StatusBadRequest, "speed must be 0-1000")
		return
	}
	s.Eng.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, http.StatusOK, map[string]float64{"speed": s.Eng.Speed()})
}

type scheduleRequest struct {
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Delay    uint64          `json:"delay"`
	Interval int64           `json:"interval"`
	Limit    int             `json:"limit"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := scheduler.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage("{}")
	}
	payload, err := scheduler.DecodePayload(kind, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var id scheduler.TaskID
	err = s.Eng.Do(func(sim *engine.Simulation) error {
		var err error
		id, err = sim.ScheduleIn(payload, req.Delay, req.Interval, req.Limit)
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	slog.Info("task scheduled", "id", id, "kind", kind, "delay", req.Delay)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "kind": kind})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var ok bool
	_ = s.Eng.Do(func(sim *engine.Simulation) error {
		ok = sim.Cancel(scheduler.TaskID(id))
		return nil
	})
	if !ok {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDissolve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.Eng.Do(func(sim *engine.Simulation) error { return sim.Dissolve(name) })
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	var req economy.BudgetAllocation
	if !decode(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	var out economy.BudgetAllocation
	err := s.Eng.Do(func(sim *engine.Simulation) error {
		c, err := sim.State().Countries.Find(name)
		if err != nil {
			return err
		}
		if err := sim.SetAllocation(c.Name, req); err != nil {
			return err
		}
		out = c.Budget
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type industryView struct {
	EnergyCostIndex float64             `json:"energy_cost_index"`
	Sectors         []industry.Overview `json:"sectors"`
}

func (s *Server) handleIndustry(w http.ResponseWriter, _ *http.Request) {
	var out industryView
	_ = s.Eng.Do(func(sim *engine.Simulation) error {
		rt := sim.State().Industry
		out = industryView{EnergyCostIndex: rt.EnergyCostIndex(), Sectors: rt.Overview()}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubsidy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percent float64 `json:"percent"`
	}
	if !decode(w, r, &req) {
		return
	}
	var out industry.Overview
	err := s.Eng.Do(func(sim *engine.Simulation) error {
		var err error
		out, err = sim.Subsidize(chi.URLParam(r, "sector"), req.Percent)
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "database not available")
		return
	}
	var tick uint64
	err := s.Eng.Do(func(sim *engine.Simulation) error {
		tick = sim.Tick()
		return s.DB.SaveSimulation(sim)
	})
	if err != nil {
		slog.Error("snapshot save failed", "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tick":    tick,
		"message": "snapshot saved",
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, clock.ErrInvalidAdvance),
		errors.Is(err, clock.ErrInvalidMultiplier),
		errors.Is(err, scheduler.ErrInvalidSchedule),
		errors.Is(err, economy.ErrInvalidAllocation),
		errors.Is(err, industry.ErrInvalidSubsidy),
		errors.Is(err, industry.ErrAmbiguousSector):
		return http.StatusBadRequest
	case errors.Is(err, world.ErrUnknownCountry),
		errors.Is(err, industry.ErrUnknownSector):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTickInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/statecraft/internal/calendar"
	"github.com/talgya/statecraft/internal/config"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/entropy"
	"github.com/talgya/statecraft/internal/persistence"
	"github.com/talgya/statecraft/internal/scenario"
	"github.com/talgya/statecraft/internal/scripted"
	"github.com/talgya/statecraft/internal/systems"
)

// session is one opened database and the simulation stored in it.
type session struct {
	cfg *config.Config
	db  *persistence.DB
	sim *engine.Simulation
}

// openSession restores the stored simulation, or creates and stores a new
// one when the database is empty.
func openSession(cfg *config.Config) (*session, error) {
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sim, fresh, err := loadOrCreate(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &session{cfg: cfg, db: db, sim: sim}
	if fresh {
		if err := s.save(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) save() error { return s.db.SaveSimulation(s.sim) }

func (s *session) Close() error { return s.db.Close() }

// loadOrCreate returns the stored simulation, or a new one and true.
func loadOrCreate(cfg *config.Config, db *persistence.DB) (*engine.Simulation, bool, error) {
	sc, err := loadScenario(cfg)
	if err != nil {
		return nil, false, err
	}
	templates, err := sc.LoadTemplates()
	if err != nil {
		return nil, false, err
	}

	snap, err := db.LoadSnapshot()
	switch {
	case err == nil:
		sim, err := engine.Restore(snap, templates, systems.Default())
		if err != nil {
			return nil, false, fmt.Errorf("restore: %w", err)
		}
		slog.Debug("simulation restored", "run_id", sim.RunID(), "tick", sim.Tick())
		return sim, false, nil
	case errors.Is(err, persistence.ErrNoSnapshot):
	default:
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}

	sim, err := newSimulation(cfg, sc, templates)
	if err != nil {
		return nil, false, err
	}
	slog.Info("new simulation created", "scenario", sc.Name, "run_id", sim.RunID(), "countries", sim.State().Countries.Len())
	return sim, true, nil
}

// loadScenario picks, in order: the configured scenario file, a generated
// world of the configured size, or the bundled scenario.
func loadScenario(cfg *config.Config) (*scenario.Scenario, error) {
	switch {
	case cfg.ScenarioPath != "":
		return scenario.Load(cfg.ScenarioPath)
	case cfg.Countries > 0:
		seed := cfg.Seed
		if seed == 0 {
			seed = 1
		}
		return scenario.Generated(cfg.Countries, seed, calendar.Default()), nil
	default:
		return scenario.Default()
	}
}

func newSimulation(cfg *config.Config, sc *scenario.Scenario, templates []*scripted.Template) (*engine.Simulation, error) {
	cal, err := cfg.ResolveCalendar(sc.Calendar)
	if err != nil {
		return nil, err
	}
	seed := sc.Seed
	if cfg.Seed != 0 {
		seed = cfg.Seed
	}
	if seed == 0 {
		seed = entropy.RandomSeed()
		slog.Info("no seed configured, drew one", "seed", seed)
	}
	return engine.New(engine.Config{
		Calendar:   cal,
		Seed:       seed,
		Multiplier: cfg.Multiplier,
		Countries:  sc.Countries,
		Market:     sc.Market,
		Templates:  templates,
		Subsystems: systems.Default(),
	})
}

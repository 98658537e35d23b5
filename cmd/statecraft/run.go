package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/statecraft/internal/api"
	"github.com/talgya/statecraft/internal/config"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/telemetry"
)

func newRunCmd(c *cli) *cobra.Command {
	var noAPI bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance the simulation continuously and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(c.cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			return serve(ctx, c.cfg, s, !noAPI)
		},
	}
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "run the loop without the HTTP API")
	return cmd
}

// serve runs the tick loop, the API and the autosave schedule until ctx is
// cancelled, then saves once more.
func serve(ctx context.Context, cfg *config.Config, s *session, withAPI bool) error {
	metrics := telemetry.NewRecorder()

	eng := engine.NewEngine(s.sim)
	eng.Configure(cfg.LoopInterval, float64(cfg.StepMinutes), cfg.Speed)
	eng.OnTick = func(r engine.TickReport) {
		metrics.ObserveTick(r)
		if err := s.db.SaveReport(r); err != nil {
			slog.Error("failed to save report", "tick", r.Tick, "error", err)
		}
		slog.Debug("tick", "tick", r.Tick, "elapsed", r.Elapsed, "advanced", r.Advanced, "lines", len(r.Lines))
	}

	autosave := func() {
		err := eng.Do(func(sim *engine.Simulation) error { return s.db.SaveSimulation(sim) })
		if err != nil {
			slog.Error("autosave failed", "error", err)
		}
	}
	sched := cron.New(cron.WithParser(config.CronParser))
	if _, err := sched.AddFunc(cfg.AutosaveSpec, autosave); err != nil {
		return err
	}
	sched.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	if withAPI {
		srv := &api.Server{
			Eng:        eng,
			DB:         s.db,
			Metrics:    metrics,
			Limiter:    api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
			AdminKey:   cfg.AdminKey,
			DateFormat: cfg.DateFormat,
		}
		g.Go(func() error { return srv.Run(ctx, cfg.APIAddr) })
	}

	err := g.Wait()
	<-sched.Stop().Done()

	slog.Info("saving final state...")
	if serr := eng.Do(func(sim *engine.Simulation) error { return s.db.SaveSimulation(sim) }); serr != nil {
		slog.Error("final save failed", "error", serr)
		if err == nil {
			err = serr
		}
	}
	return err
}

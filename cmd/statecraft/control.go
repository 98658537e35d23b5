package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scheduler"
)

func newStepCmd(c *cli) *cobra.Command {
	var ticks int
	cmd := &cobra.Command{
		Use:   "step [minutes]",
		Short: "Advance the simulation by one or more ticks",
		Long: `Advance the simulation. Minutes are requested minutes per tick; the time ` +
			`multiplier scales them. Defaults to STATECRAFT_STEP_MINUTES.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes := float64(c.cfg.StepMinutes)
			if len(args) == 1 {
				v, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("minutes: %w", err)
				}
				minutes = v
			}
			if ticks < 1 {
				return errors.New("--ticks must be at least 1")
			}
			return c.withSession(func(s *session) error {
				for range ticks {
					report, err := s.sim.RunTick(minutes)
					if err != nil {
						return err
					}
					printReport(cmd.OutOrStdout(), report, c.cfg.DateFormat)
					if err := s.db.SaveReport(report); err != nil {
						return err
					}
				}
				return s.save()
			})
		},
	}
	cmd.Flags().IntVarP(&ticks, "ticks", "t", 1, "number of ticks to run")
	return cmd
}

func newSpeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "speed <multiplier>",
		Short: "Set the time multiplier applied to every tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s *session) error {
				if err := s.sim.SetMultiplier(args[0]); err != nil {
					return err
				}
				st := s.sim.Status()
				fmt.Fprintf(cmd.OutOrStdout(), "Time multiplier set to %s (exact %s)\n", st.DisplayMultiplier, st.Multiplier)
				return s.save()
			})
		},
	}
}

// timing holds the flags every schedule subcommand shares.
type timing struct {
	delay    uint64
	interval int64
	limit    int
}

func (t *timing) bind(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&t.delay, "delay", 60, "minutes from now until the task fires")
	cmd.Flags().Int64Var(&t.interval, "every", 0, "repeat every N minutes")
	cmd.Flags().IntVar(&t.limit, "limit", 0, "stop after this many runs (0 = unbounded)")
}

func newScheduleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a time-delayed effect",
	}

	schedule := func(cmd *cobra.Command, t *timing, build func(*engine.Simulation) (scheduler.Payload, error)) error {
		return c.withSession(func(s *session) error {
			p, err := build(s.sim)
			if err != nil {
				return err
			}
			id, err := s.sim.ScheduleIn(p, t.delay, t.interval, t.limit)
			if err != nil {
				return err
			}
			due := s.sim.Clock().Calendar().FromMinutes(s.sim.Clock().Elapsed() + t.delay)
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s as task %d, due %s\n", p.Kind(), id, due.Format(c.cfg.DateFormat))
			return s.save()
		})
	}

	var mt timing
	var delta int
	mission := &cobra.Command{
		Use:   "mission <from> <to>",
		Short: "Send a diplomatic mission that shifts a relation when it lands",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return schedule(cmd, &mt, func(sim *engine.Simulation) (scheduler.Payload, error) {
				from, err := sim.State().Countries.Find(args[0])
				if err != nil {
					return nil, err
				}
				to, err := sim.State().Countries.Find(args[1])
				if err != nil {
					return nil, err
				}
				if from == to {
					return nil, fmt.Errorf("%s cannot send a mission to itself", from.Name)
				}
				return scheduler.DiplomaticMission{Country: from.Name, Partner: to.Name, Delta: delta}, nil
			})
		},
	}
	mt.bind(mission)
	mission.Flags().IntVar(&delta, "delta", 5, "relation change on arrival")

	var pt timing
	var stability int
	var gdp float64
	project := &cobra.Command{
		Use:   "project <country>",
		Short: "Start an infrastructure project that pays off on completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return schedule(cmd, &pt, func(sim *engine.Simulation) (scheduler.Payload, error) {
				ct, err := sim.State().Countries.Find(args[0])
				if err != nil {
					return nil, err
				}
				return scheduler.InfrastructureProject{Country: ct.Name, Stability: stability, GDP: gdp}, nil
			})
		},
	}
	pt.bind(project)
	project.Flags().IntVar(&stability, "stability", 3, "stability gained on completion")
	project.Flags().Float64Var(&gdp, "gdp", 50, "GDP added on completion")

	var st timing
	var factor float64
	shock := &cobra.Command{
		Use:   "shock",
		Short: "Schedule a commodity market shock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return schedule(cmd, &st, func(*engine.Simulation) (scheduler.Payload, error) {
				if factor <= 0 {
					return nil, fmt.Errorf("factor must be positive, got %g", factor)
				}
				return scheduler.MarketShock{Factor: factor}, nil
			})
		},
	}
	st.bind(shock)
	shock.Flags().Float64Var(&factor, "factor", 1.15, "price multiplier when the shock lands")

	cmd.AddCommand(mission, project, shock)
	return cmd
}

func newSetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set <country> <infra> <military> <welfare> <diplomacy> <debt> <admin> <research> [core|nocore]",
		Short: "Replace a country's budget allocation, in percent of GDP",
		Long: `Replace a country's budget allocation. Each share is a percentage of GDP ` +
			`between 0 and 100. The optional last argument turns the core minimum for ` +
			`debt service and administration on (core, the default) or off (nocore).`,
		Args: cobra.RangeArgs(8, 9),
		RunE: func(cmd *cobra.Command, args []string) error {
			shares := make([]float64, 7)
			for i, arg := range args[1:8] {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("share %d: %w", i+1, err)
				}
				shares[i] = v
			}
			b := economy.BudgetAllocation{
				Infrastructure: shares[0],
				Military:       shares[1],
				Welfare:        shares[2],
				Diplomacy:      shares[3],
				DebtService:    shares[4],
				Administration: shares[5],
				Research:       shares[6],
				CoreMinimum:    true,
			}
			if len(args) == 9 {
				switch args[8] {
				case "core":
				case "nocore":
					b.CoreMinimum = false
				default:
					return fmt.Errorf("expected core or nocore, got %q", args[8])
				}
			}
			return c.withSession(func(s *session) error {
				ct, err := s.sim.State().Countries.Find(args[0])
				if err != nil {
					return err
				}
				if err := s.sim.SetAllocation(ct.Name, b); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Budget allocation for %s updated (total %g%%)\n", ct.Name, b.TotalPercent())
				return s.save()
			})
		},
	}
}

func newCancelCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return c.withSession(func(s *session) error {
				if !s.sim.Cancel(scheduler.TaskID(id)) {
					return fmt.Errorf("no pending task %d", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %d\n", id)
				return s.save()
			})
		},
	}
}

func newDissolveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "dissolve <country>",
		Short: "Remove a country; tasks that name it are skipped when they fire",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s *session) error {
				ct, err := s.sim.State().Countries.Find(args[0])
				if err != nil {
					return err
				}
				name := ct.Name
				if err := s.sim.Dissolve(name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s has been dissolved\n", name)
				return s.save()
			})
		},
	}
}

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the stored simulation and start a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(s *session) error {
				if err := s.db.Reset(); err != nil {
					return err
				}
				sim, _, err := loadOrCreate(c.cfg, s.db)
				if err != nil {
					return err
				}
				s.sim = sim
				fmt.Fprintf(cmd.OutOrStdout(), "Started new run %s\n", sim.RunID())
				return s.save()
			})
		},
	}
}

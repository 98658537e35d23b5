package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scheduler"
)

// withSession opens the store, runs fn and closes the store again.
func (c *cli) withSession(fn func(*session) error) error {
	s, err := openSession(c.cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func money(v float64) string { return humanize.CommafWithDigits(v, 1) }

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the clock, multiplier and scheduler state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(s *session) error {
				printStatus(cmd.OutOrStdout(), s.sim, c.cfg.DateFormat)
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, sim *engine.Simulation, layout string) {
	st := sim.Status()
	fmt.Fprintf(w, "Date:        %s\n", st.Date.Format(layout))
	fmt.Fprintf(w, "Elapsed:     %s minutes\n", humanize.Comma(int64(st.Elapsed)))
	fmt.Fprintf(w, "Tick:        %d\n", st.Tick)
	fmt.Fprintf(w, "Multiplier:  %s (exact %s)\n", st.DisplayMultiplier, st.Multiplier)
	fmt.Fprintf(w, "Pending:     %d", st.Pending)
	parts := make([]string, 0, len(st.Buckets))
	for b, n := range st.Buckets {
		parts = append(parts, fmt.Sprintf("%s %d", scheduler.Bucket(b), n))
	}
	fmt.Fprintf(w, " (%s)\n", strings.Join(parts, ", "))
	if st.NextDueIn != nil {
		fmt.Fprintf(w, "Next due in: %d minutes\n", *st.NextDueIn)
	}
	fmt.Fprintf(w, "Commodity:   %s\n", money(st.CommodityPrice))
	fmt.Fprintf(w, "Run:         %s\n", sim.RunID())
}

func newOverviewCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "List every country with its headline figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(s *session) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tCOUNTRY\tGOVERNMENT\tGDP\tSTAB\tAPPR\tMIL\tRES\tCASH\tDEBT\tRATING")
				for i, ct := range s.sim.State().Countries.All() {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
						i+1, ct.Name, ct.Government, money(ct.GDP), ct.Stability, ct.Approval,
						ct.Military, ct.Resources, money(ct.Fiscal.Cash), money(ct.Fiscal.Debt), ct.Fiscal.Rating)
				}
				return tw.Flush()
			})
		},
	}
}

func newInspectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <country>",
		Short: "Show one country in detail, by name or overview number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s *session) error {
				ct, err := s.sim.State().Countries.Find(args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s (%s)\n", ct.Name, ct.Government)
				fmt.Fprintf(w, "  Population %.1fm  GDP %s  Employment %.0f%%\n", ct.Population, money(ct.GDP), ct.EmploymentRatio()*100)
				fmt.Fprintf(w, "  Stability %d  Approval %d  Military %d  Resources %d\n", ct.Stability, ct.Approval, ct.Military, ct.Resources)
				fmt.Fprintf(w, "  Treasury %s  Debt %s  Rating %s at %.2f%%\n",
					money(ct.Fiscal.Cash), money(ct.Fiscal.Debt), ct.Fiscal.Rating, ct.Fiscal.InterestRate*100)

				last := ct.Fiscal.LastTick
				fmt.Fprintf(w, "  Last tick: revenue %s, expense %s, net %s\n",
					money(last.TotalRevenue()), money(last.TotalExpense()), money(last.Net()))

				b := ct.Budget
				fmt.Fprintf(w, "  Budget %%: infrastructure %g, military %g, welfare %g, diplomacy %g, debt %g, administration %g, research %g\n",
					b.Infrastructure, b.Military, b.Welfare, b.Diplomacy, b.DebtService, b.Administration, b.Research)
				if b.CoreMinimum {
					fmt.Fprintln(w, "  Core minimum enforced")
				}
				t := ct.Tax
				fmt.Fprintf(w, "  Tax: income %.0f%%, corporate %.0f%%, consumption %.0f%%\n",
					t.IncomeRate*100, t.CorporateRate*100, t.ConsumptionRate*100)

				names := make([]string, 0, len(ct.Relations))
				for n := range ct.Relations {
					names = append(names, n)
				}
				slices.Sort(names)
				fmt.Fprintln(w, "  Relations:")
				for _, n := range names {
					fmt.Fprintf(w, "    %-16s %4d\n", n, ct.Relations[n])
				}
				return nil
			})
		},
	}
}

func newTasksCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List pending scheduled tasks in due order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(s *session) error {
				cal := s.sim.Clock().Calendar()
				tasks := s.sim.Tasks()
				slices.SortFunc(tasks, func(a, b scheduler.Task) int {
					if a.Spec.DueAt != b.Spec.DueAt {
						return cmpUint(a.Spec.DueAt, b.Spec.DueAt)
					}
					return cmpUint(uint64(a.ID), uint64(b.ID))
				})

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tDUE\tREPEAT\tRUNS\tPAYLOAD")
				for _, t := range tasks {
					repeat := "once"
					if rec := t.Spec.Recurrence; rec != nil {
						repeat = "every " + strconv.FormatInt(rec.Interval, 10) + "m"
						if rec.Limit > 0 {
							repeat += fmt.Sprintf(" x%d", rec.Limit)
						}
					}
					payload, _ := json.Marshal(t.Payload)
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
						t.ID, t.Kind(), cal.FromMinutes(t.Spec.DueAt).Format(c.cfg.DateFormat), repeat, t.Runs, payload)
				}
				return tw.Flush()
			})
		},
	}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent report lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(s *session) error {
				lines, err := s.db.RecentReports(limit)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, l := range lines {
					fmt.Fprintf(w, "[%d] %s\n", l.Tick, l.Line)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "lines", "n", 20, "number of lines to show")
	return cmd
}

// printReport writes one tick's report lines and any tasks that did not
// execute.
func printReport(w io.Writer, r engine.TickReport, layout string) {
	fmt.Fprintf(w, "Tick %d: %s (+%d min)\n", r.Tick, r.Date.Format(layout), r.Advanced)
	for _, l := range r.Lines {
		fmt.Fprintf(w, "  %s\n", l)
	}
	for _, o := range r.Outcomes {
		if o.Status == engine.StatusExecuted {
			continue
		}
		fmt.Fprintf(w, "  ! task %d (%s) %s: %s\n", o.Task, o.Kind, o.Status, o.Reason)
	}
	if len(r.Lines) == 0 && len(r.Outcomes) == 0 {
		fmt.Fprintln(w, "  (quiet)")
	}
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/talgya/statecraft/internal/industry"
)

func newIndustryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "industry",
		Short: "Show productive sectors and set subsidies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(s *session) error {
				rt := s.sim.State().Industry
				return printSectors(cmd.OutOrStdout(), rt.Overview(), rt.EnergyCostIndex())
			})
		},
	}

	subsidize := &cobra.Command{
		Use:   "subsidize <sector> <percent>",
		Short: "Set the share of a sector's costs paid by treasuries",
		Long: `Set a sector subsidy. Sectors are named category:key or by a key that is ` +
			`unique across categories. Zero removes the subsidy.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("percent: %w", err)
			}
			return c.withSession(func(s *session) error {
				ov, err := s.sim.Subsidize(args[0], pct)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subsidy for %s (%s) set to %.1f%%\n", ov.Name, ov.ID, ov.SubsidyPercent)
				return s.save()
			})
		},
	}
	cmd.AddCommand(subsidize)
	return cmd
}

func printSectors(w io.Writer, sectors []industry.Overview, energyIndex float64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTOR\tNAME\tRATE\tEFF\tSUBSIDY\tVALUE ADDED")
	for _, ov := range sectors {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.2f\t%.1f%%\t%s\n",
			ov.ID, ov.Name, ov.Last.Rate, ov.Efficiency, ov.SubsidyPercent, money(ov.Last.ValueAdded()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Energy cost index: %.2f\n", energyIndex)
	return err
}

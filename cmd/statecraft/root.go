package main

import (
	"github.com/spf13/cobra"

	"github.com/talgya/statecraft/internal/config"
	"github.com/talgya/statecraft/internal/logging"
)

// cli holds what every subcommand shares once flags are parsed.
type cli struct {
	envFiles []string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "statecraft",
		Short: "Tick-driven political and economic simulation of competing countries.",
		Long: `Statecraft simulates countries under budgets, diplomacy, market swings and ` +
			`scripted events. State is kept in a SQLite file between invocations; ` +
			`"run" advances it continuously and serves the HTTP API, while the other ` +
			`commands inspect or step it directly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.envFiles...)
			if err != nil {
				return err
			}
			if _, err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env", nil, "dotenv files to load (default .env when present)")

	root.AddCommand(
		newRunCmd(c),
		newStepCmd(c),
		newStatusCmd(c),
		newOverviewCmd(c),
		newInspectCmd(c),
		newTasksCmd(c),
		newHistoryCmd(c),
		newSpeedCmd(c),
		newSetCmd(c),
		newIndustryCmd(c),
		newScheduleCmd(c),
		newCancelCmd(c),
		newDissolveCmd(c),
		newResetCmd(c),
		newWatchCmd(c),
	)
	return root
}

package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/statecraft/internal/monitor"
)

func newWatchCmd(_ *cli) *cobra.Command {
	var (
		url      string
		interval time.Duration
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a running simulation over HTTP and flag countries in crisis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			obs := monitor.NewObserver(url)
			if once {
				snap, err := obs.Observe(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(monitor.Triage(snap))
			}
			w := &monitor.Watcher{Observer: obs, Interval: interval}
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "base URL of the simulation API")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between observations")
	cmd.Flags().BoolVar(&once, "once", false, "observe once, print the triage as JSON and exit")
	return cmd
}

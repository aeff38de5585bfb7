package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/star/skywatch/internal/report"
	"github.com/star/skywatch/internal/schedule"
)

func newEventsCmd(root *rootOptions) *cobra.Command {
	var (
		count int
		at    string
		utc   bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the next events without waiting for them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("-n must be positive")
			}
			start, err := parseAt(at)
			if err != nil {
				return err
			}

			a, err := setup(root, false)
			if err != nil {
				return err
			}
			defer a.closeLog()

			kinds, err := a.cfg.EventKinds()
			if err != nil {
				return err
			}
			if err := a.loadCatalogs(cmd.Context()); err != nil {
				return err
			}

			sched := schedule.New(a.observer, a.registry, nil, schedule.Config{
				Bodies:           a.cfg.Bodies,
				Kinds:            kinds,
				RescheduleOffset: a.cfg.Schedule.RescheduleOffset.Duration,
				Workers:          a.cfg.Schedule.Workers,
			}, a.logger)
			events, err := sched.Preview(cmd.Context(), start, count)
			if err != nil {
				return err
			}

			loc := time.Local
			if utc {
				loc = time.UTC
			}
			return report.WriteUpcoming(os.Stdout, events, loc)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 20, "number of events")
	cmd.Flags().StringVar(&at, "at", "", "start time, RFC3339 (default now)")
	cmd.Flags().BoolVar(&utc, "utc", false, "print dates in UTC")
	return cmd
}

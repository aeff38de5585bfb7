package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/star/skywatch/internal/ephem"
)

func newPassesCmd(root *rootOptions) *cobra.Command {
	var (
		count int
		at    string
	)
	cmd := &cobra.Command{
		Use:   "passes satellite...",
		Short: "Predict the next visible passes of satellites",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseAt(at)
			if err != nil {
				return err
			}
			a, err := setup(root, false)
			if err != nil {
				return err
			}
			defer a.closeLog()
			if err := a.loadCatalogs(cmd.Context()); err != nil {
				return err
			}

			fmt.Printf("Prediction start: %s\n", start.Local().Format("2006-01-02 15:04:05 MST"))
			for _, name := range args {
				t, ok := a.registry.Get(name)
				sat, isSat := t.(*ephem.Satellite)
				if !ok || !isSat {
					fmt.Printf("  %s: not a known satellite\n", name)
					continue
				}
				fmt.Printf("  %s (NORAD %d)\n", sat.Name(), sat.NORADID())

				from := start
				for i := 0; i < count; i++ {
					p, err := a.observer.NextPass(sat, from)
					if errors.Is(err, ephem.ErrNoPass) {
						fmt.Println("    no further passes in the search window")
						break
					}
					if err != nil {
						fmt.Printf("    ERROR %v\n", err)
						break
					}
					fmt.Printf("    pass %d: rise=%s az=%.0f° max=%.1f° at %s set=%s az=%.0f° dur=%.0fs\n",
						i+1,
						p.Rise.Local().Format("Jan 02 15:04:05"), p.RiseAz,
						p.TransitAlt, p.Transit.Local().Format("15:04:05"),
						p.Set.Local().Format("15:04:05"), p.SetAz,
						p.Duration().Seconds(),
					)
					from = p.Set.Add(time.Minute)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "passes per satellite")
	cmd.Flags().StringVar(&at, "at", "", "start time, RFC3339 (default now)")
	return cmd
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/report"
)

func newSkyCmd(root *rootOptions) *cobra.Command {
	var (
		at      string
		pairs   []string
		catalog bool
	)
	cmd := &cobra.Command{
		Use:   "sky [body...]",
		Short: "Show where bodies are now and how far apart",
		Long: `Prints altitude, azimuth, right ascension, declination and distance of the
named bodies (default: the tracked bodies), followed by angular separations.
Pairs are given as --pair "Moon,Jupiter"; by default the moon is paired with
every tracked planet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseAt(at)
			if err != nil {
				return err
			}
			a, err := setup(root, false)
			if err != nil {
				return err
			}
			defer a.closeLog()
			if catalog {
				if err := a.loadCatalogs(cmd.Context()); err != nil {
					return err
				}
			}

			names := args
			if len(names) == 0 {
				names = a.cfg.Bodies
			}
			found, missing := a.registry.Select(names)
			for _, m := range missing {
				a.logger.Warn("body not in registry", "body", m)
			}
			var bodies []ephem.Body
			for _, target := range found {
				if b, ok := target.(ephem.Body); ok {
					bodies = append(bodies, b)
				}
			}

			fmt.Printf("%s (%.4f, %.4f) at %s\n\n", a.observer.Name, a.observer.Lat, a.observer.Lon, t.Format("2006-01-02 15:04:05 MST"))
			if err := report.WritePositions(os.Stdout, report.Positions(a.observer, bodies, t)); err != nil {
				return err
			}

			ps, err := resolvePairs(a.registry, pairs, bodies)
			if err != nil {
				return err
			}
			if len(ps) == 0 {
				return nil
			}
			fmt.Println()
			return report.WriteSeparations(os.Stdout, report.Separations(ps, t))
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "time, RFC3339 (default now)")
	cmd.Flags().StringArrayVar(&pairs, "pair", nil, `two bodies separated by a comma, e.g. "Moon,Jupiter"`)
	cmd.Flags().BoolVar(&catalog, "catalogs", false, "load comet and satellite catalogs first")
	return cmd
}

type getter interface {
	Get(name string) (ephem.Target, bool)
}

func resolvePairs(reg getter, specs []string, bodies []ephem.Body) ([]report.Pair, error) {
	if len(specs) == 0 {
		return moonPairs(bodies), nil
	}
	var out []report.Pair
	for _, spec := range specs {
		a, b, ok := strings.Cut(spec, ",")
		if !ok {
			return nil, fmt.Errorf("--pair %q: want two names separated by a comma", spec)
		}
		ba, err := lookupBody(reg, strings.TrimSpace(a))
		if err != nil {
			return nil, err
		}
		bb, err := lookupBody(reg, strings.TrimSpace(b))
		if err != nil {
			return nil, err
		}
		out = append(out, report.Pair{A: ba, B: bb})
	}
	return out, nil
}

func lookupBody(reg getter, name string) (ephem.Body, error) {
	t, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown body %q", name)
	}
	b, ok := t.(ephem.Body)
	if !ok {
		return nil, fmt.Errorf("%s has no fixed sky position", name)
	}
	return b, nil
}

func moonPairs(bodies []ephem.Body) []report.Pair {
	var moon ephem.Body
	for _, b := range bodies {
		if _, ok := b.(ephem.Moon); ok {
			moon = b
		}
	}
	if moon == nil {
		return nil
	}
	var out []report.Pair
	for _, b := range bodies {
		if _, ok := b.(*ephem.Planet); ok {
			out = append(out, report.Pair{A: moon, B: b})
		}
	}
	return out
}

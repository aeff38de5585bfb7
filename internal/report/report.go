// Package report renders positions, separations and upcoming events as
// plain-text tables for the CLI.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"
	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/event"
)

// Position is where one body stands for the observer at an instant.
type Position struct {
	Name     string
	Az, Alt  float64 // degrees, azimuth from north
	RA       unit.RA
	Dec      unit.Angle
	Distance float64 // AU; zero for stars
	Up       bool
}

// Positions computes the apparent place of each body at t.
func Positions(o *ephem.Observer, bodies []ephem.Body, t time.Time) []Position {
	out := make([]Position, 0, len(bodies))
	for _, b := range bodies {
		ra, dec, dist := b.Equatorial(t)
		az, alt := o.Horizontal(b, t)
		out = append(out, Position{
			Name:     b.Name(),
			Az:       az,
			Alt:      alt,
			RA:       ra,
			Dec:      dec,
			Distance: dist,
			Up:       alt > b.StandardAltitude().Deg(),
		})
	}
	return out
}

// WritePositions prints one row per position.
func WritePositions(w io.Writer, ps []Position) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BODY\tRA\tDEC\tAZ\tALT\tDIST AU\tUP")
	for _, p := range ps {
		dist := "-"
		if p.Distance > 0 {
			dist = fmt.Sprintf("%.3f", p.Distance)
		}
		fmt.Fprintf(tw, "%s\t%2v\t%2v\t%.1f\t%.1f\t%s\t%s\n",
			p.Name,
			sexa.FmtRA(p.RA),
			sexa.FmtAngle(p.Dec),
			p.Az, p.Alt, dist, yesNo(p.Up))
	}
	return tw.Flush()
}

// Pair names two bodies whose separation is reported.
type Pair struct {
	A, B ephem.Body
}

// Separations measures every pair at t.
func Separations(pairs []Pair, t time.Time) []ephem.Separation {
	out := make([]ephem.Separation, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, ephem.Separate(p.A, p.B, t))
	}
	return out
}

// WriteSeparations prints one row per pair with its trend.
func WriteSeparations(w io.Writer, seps []ephem.Separation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tSEPARATION\tTREND")
	for _, s := range seps {
		trend := "opening"
		if s.Closing {
			trend = "closing"
		}
		fmt.Fprintf(tw, "%s - %s\t%v\t%s\n", s.A, s.B, sexa.FmtAngle(s.Angle), trend)
	}
	return tw.Flush()
}

// WriteUpcoming prints events in the order given, with dates in loc.
func WriteUpcoming(w io.Writer, events []event.Event, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tKIND\tBODY\tAZ/ALT")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Date.In(loc).Format("2006-01-02 15:04:05 MST"), e.Kind, e.Body, AzAlt(e))
	}
	return tw.Flush()
}

// AzAlt formats an event's value with the quantity it measures.
func AzAlt(e event.Event) string {
	if e.Kind.MeasuresAltitude() {
		return fmt.Sprintf("alt %.0f°", e.AzAlt)
	}
	return fmt.Sprintf("az %.0f°", e.AzAlt)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

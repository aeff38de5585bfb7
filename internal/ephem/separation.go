package ephem

import (
	"time"

	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
)

// Separation is the angular distance between two bodies at one instant.
type Separation struct {
	A, B  string
	Angle unit.Angle
	// Closing is true when the bodies are an hour later closer than now.
	Closing bool
}

// Separate measures the separation of a and b at t.
func Separate(a, b Body, t time.Time) Separation {
	now := sep(a, b, t)
	later := sep(a, b, t.Add(time.Hour))
	return Separation{
		A:       a.Name(),
		B:       b.Name(),
		Angle:   now,
		Closing: later < now,
	}
}

func sep(a, b Body, t time.Time) unit.Angle {
	α1, δ1, _ := a.Equatorial(t)
	α2, δ2, _ := b.Equatorial(t)
	return angle.Sep(unit.Angle(α1), δ1, unit.Angle(α2), δ2)
}

// Package ephem answers "when does this body next rise, transit or set" for a
// fixed observer. Positions come from the meeus algorithms (sun, moon, planets,
// minor bodies, stars) and SGP4 (earth satellites); the event searches scan the
// observer's altitude or hour angle and bisect to the second.
package ephem

import (
	"errors"
	"fmt"
	"time"

	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/rise"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

var (
	// ErrCircumpolar means the requested horizon crossing does not exist for
	// this observer. errors.Is matches both ErrAlwaysUp and ErrNeverUp.
	ErrCircumpolar = errors.New("circumpolar")
	ErrAlwaysUp    = fmt.Errorf("%w: always above horizon", ErrCircumpolar)
	ErrNeverUp     = fmt.Errorf("%w: never above horizon", ErrCircumpolar)

	// ErrNoPass means a satellite does not come above the horizon within the search window.
	ErrNoPass = errors.New("no satellite pass in search window")

	// ErrUnsupportedKind means the event kind does not apply to the target
	// (rise/set for a satellite, pass events for a planet).
	ErrUnsupportedKind = errors.New("event kind not supported for target")
)

const (
	kmPerAU = 149597870.7
	// deltaT approximates TT-UT for the 2020s; jde = jd + ΔT.
	deltaT = 69 * time.Second
)

// Target is anything the registry can track.
type Target interface {
	Name() string
}

// Body is a target with a computable apparent place.
type Body interface {
	Target
	// Equatorial returns the apparent geocentric right ascension and
	// declination of date, and the distance in AU (0 for stars).
	Equatorial(t time.Time) (unit.RA, unit.Angle, float64)
	// StandardAltitude is the altitude of the center at rise and set, with
	// refraction and semidiameter folded in.
	StandardAltitude() unit.Angle
}

// jde converts an instant to a Julian Ephemeris Day.
func jde(t time.Time) float64 {
	return julian.TimeToJD(t.UTC().Add(deltaT))
}

func j2000Century(jde float64) float64 {
	return (jde - 2451545) / 36525
}

// Sun is the apparent sun.
type Sun struct{}

func (Sun) Name() string { return "Sun" }

func (Sun) Equatorial(t time.Time) (unit.RA, unit.Angle, float64) {
	j := jde(t)
	α, δ := solar.ApparentEquatorial(j)
	return α, δ, solar.Radius(j2000Century(j))
}

func (Sun) StandardAltitude() unit.Angle { return rise.Stdh0Solar }

// Moon is the geocentric moon.
type Moon struct{}

func (Moon) Name() string { return "Moon" }

func (Moon) Equatorial(t time.Time) (unit.RA, unit.Angle, float64) {
	j := jde(t)
	λ, β, Δ := moonposition.Position(j)
	Δψ, Δε := nutation.Nutation(j)
	ε := nutation.MeanObliquity(j) + Δε
	α, δ := coord.EclToEq(λ+Δψ, β, ε.Sin(), ε.Cos())
	return α, δ, Δ / kmPerAU
}

func (Moon) StandardAltitude() unit.Angle { return rise.Stdh0LunarMean }

package ephem

import (
	"errors"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/kepler"
	"github.com/soniakeys/meeus/v3/nearparabolic"
	"github.com/soniakeys/meeus/v3/parabolic"
	"github.com/soniakeys/meeus/v3/rise"
	"github.com/soniakeys/unit"
)

// OrbitKind distinguishes the supported minor body orbit types.
type OrbitKind int

const (
	EllipticOrbit OrbitKind = iota
	ParabolicOrbit
	HyperbolicOrbit // also near-parabolic, e >= 1
)

// MagnitudeModel selects how a minor body's brightness is estimated.
type MagnitudeModel byte

const (
	MagnitudeNone  MagnitudeModel = 0
	MagnitudeComet MagnitudeModel = 'g' // m = g + 5 log Δ + 2.5 k log r
	MagnitudeHG    MagnitudeModel = 'H' // IAU H-G asteroid system
)

// gaussK is the Gaussian gravitational constant in degrees per day.
const gaussK = 0.9856076686

// Orbit holds heliocentric osculating elements referred to the J2000 ecliptic.
type Orbit struct {
	Kind    OrbitKind
	Inc     unit.Angle
	Node    unit.Angle
	ArgPeri unit.Angle

	// Elliptic.
	SemiMajor   float64    // AU
	DailyMotion unit.Angle // per day; zero derives it from SemiMajor
	Ecc         float64
	MeanAnomaly unit.Angle // at Epoch
	Epoch       float64    // JDE

	// Parabolic and hyperbolic. Ecc is shared with elliptic.
	PeriDist float64 // AU
	PeriTime float64 // JDE

	Model      MagnitudeModel
	Mag1, Mag2 float64 // g,k or H,G
}

// Validate rejects orbits the position code cannot handle.
func (o Orbit) Validate() error {
	switch o.Kind {
	case EllipticOrbit:
		if o.SemiMajor <= 0 {
			return errors.New("semi-major axis must be positive")
		}
		if o.Ecc < 0 || o.Ecc >= 1 {
			return errors.New("elliptic eccentricity must be in [0,1)")
		}
	case ParabolicOrbit:
		if o.PeriDist <= 0 {
			return errors.New("perihelion distance must be positive")
		}
	case HyperbolicOrbit:
		if o.PeriDist <= 0 {
			return errors.New("perihelion distance must be positive")
		}
		if o.Ecc < 1 {
			return errors.New("hyperbolic eccentricity must be at least 1")
		}
	default:
		return errors.New("unknown orbit kind")
	}
	return nil
}

// MinorBody is a comet or asteroid on a two-body orbit.
type MinorBody struct {
	name  string
	orbit Orbit
}

// NewMinorBody validates the orbit and wraps it as a Body.
func NewMinorBody(name string, orbit Orbit) (*MinorBody, error) {
	if err := orbit.Validate(); err != nil {
		return nil, err
	}
	return &MinorBody{name: name, orbit: orbit}, nil
}

func (m *MinorBody) Name() string { return m.name }

// Orbit returns the body's elements.
func (m *MinorBody) Orbit() Orbit { return m.orbit }

func (m *MinorBody) StandardAltitude() unit.Angle { return rise.Stdh0Stellar }

// heliocentric returns J2000 ecliptic rectangular coordinates in AU.
func (m *MinorBody) heliocentric(j float64) (x, y, z float64) {
	o := m.orbit
	var (
		ν unit.Angle
		r float64
	)
	switch o.Kind {
	case ParabolicOrbit:
		el := parabolic.Elements{TimeP: o.PeriTime, PDis: o.PeriDist}
		ν, r = el.AnomalyDistance(j)
	case HyperbolicOrbit:
		ν, r = o.openOrbit(j)
	default:
		n := o.DailyMotion
		if n == 0 {
			n = unit.AngleFromDeg(gaussK / math.Pow(o.SemiMajor, 1.5))
		}
		M := (o.MeanAnomaly + unit.Angle(n.Rad()*(j-o.Epoch))).Mod1()
		E := kepler.Kepler3(o.Ecc, M)
		ν = kepler.True(E, o.Ecc)
		r = kepler.Radius(E, o.Ecc, o.SemiMajor)
	}
	return orbitToEcliptic(r, ν, o.ArgPeri, o.Node, o.Inc)
}

// openOrbit returns true anomaly and radius on a near-parabolic or
// hyperbolic orbit. The Meeus ch. 35 series stops converging far from
// perihelion on strongly hyperbolic orbits; there the hyperbolic Kepler
// equation is solved directly.
func (o Orbit) openOrbit(j float64) (unit.Angle, float64) {
	el := nearparabolic.Elements{TimeP: o.PeriTime, PDis: o.PeriDist, Ecc: o.Ecc}
	if ν, r, err := el.AnomalyDistance(j); err == nil {
		return ν, r
	}
	return hyperbolicAnomaly(o.PeriDist, o.Ecc, j-o.PeriTime)
}

// hyperbolicAnomaly solves e sinh H - H = M by Newton iteration, dt days
// after perihelion. e must be greater than 1.
func hyperbolicAnomaly(q, e, dt float64) (unit.Angle, float64) {
	a := q / (e - 1)
	M := base.K / (a * math.Sqrt(a)) * dt
	H := math.Asinh(M / e)
	for i := 0; i < 50; i++ {
		d := (e*math.Sinh(H) - H - M) / (e*math.Cosh(H) - 1)
		H -= d
		if math.Abs(d) < 1e-12 {
			break
		}
	}
	ν := 2 * math.Atan(math.Sqrt((e+1)/(e-1))*math.Tanh(H/2))
	if ν < 0 {
		ν += 2 * math.Pi
	}
	return unit.Angle(ν), a * (e*math.Cosh(H) - 1)
}

// place computes the light-time corrected geocentric place along with the
// distances needed for the magnitude.
func (m *MinorBody) place(t time.Time) (α unit.RA, δ unit.Angle, Δ, r, R float64) {
	j := jde(t)
	ex, ey, ez := elemEarth.heliocentric(j)
	x, y, z := m.heliocentric(j)
	_, _, Δ = eclipticJ2000ToEquatorial(x-ex, y-ey, z-ez)

	x, y, z = m.heliocentric(j - Δ*0.0057755183)
	α, δ, Δ = eclipticJ2000ToEquatorial(x-ex, y-ey, z-ez)
	α, δ = precessFromJ2000(α, δ, j)
	return α, δ, Δ, math.Sqrt(x*x + y*y + z*z), math.Sqrt(ex*ex + ey*ey + ez*ez)
}

func (m *MinorBody) Equatorial(t time.Time) (unit.RA, unit.Angle, float64) {
	α, δ, Δ, _, _ := m.place(t)
	return α, δ, Δ
}

// Magnitude estimates the visual magnitude. ok is false when the catalog
// entry carried no magnitude model.
func (m *MinorBody) Magnitude(t time.Time) (mag float64, ok bool) {
	_, _, Δ, r, R := m.place(t)
	switch m.orbit.Model {
	case MagnitudeComet:
		return m.orbit.Mag1 + 5*math.Log10(Δ) + 2.5*m.orbit.Mag2*math.Log10(r), true
	case MagnitudeHG:
		cosβ := (r*r + Δ*Δ - R*R) / (2 * r * Δ)
		β := math.Acos(math.Max(-1, math.Min(1, cosβ)))
		tanHalf := math.Tan(β / 2)
		φ1 := math.Exp(-3.33 * math.Pow(tanHalf, 0.63))
		φ2 := math.Exp(-1.87 * math.Pow(tanHalf, 1.22))
		G := m.orbit.Mag2
		return m.orbit.Mag1 + 5*math.Log10(r*Δ) - 2.5*math.Log10((1-G)*φ1+G*φ2), true
	}
	return 0, false
}

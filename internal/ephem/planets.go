package ephem

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/elliptic"
	"github.com/soniakeys/meeus/v3/kepler"
	pp "github.com/soniakeys/meeus/v3/planetposition"
	"github.com/soniakeys/meeus/v3/rise"
	"github.com/soniakeys/unit"
)

// keplerian holds mean orbital elements at J2000 and their rates per Julian
// century (Standish, "Keplerian Elements for Approximate Positions of the
// Major Planets", valid 1800-2050).
type keplerian struct {
	a, aDot       float64 // AU
	e, eDot       float64
	i, iDot       float64 // degrees
	l, lDot       float64 // mean longitude, degrees
	peri, periDot float64 // longitude of perihelion, degrees
	node, nodeDot float64 // longitude of ascending node, degrees
}

var (
	elemMercury = keplerian{0.38709927, 0.00000037, 0.20563593, 0.00001906, 7.00497902, -0.00594749, 252.25032350, 149472.67411175, 77.45779628, 0.16047689, 48.33076593, -0.12534081}
	elemVenus   = keplerian{0.72333566, 0.00000390, 0.00677672, -0.00004107, 3.39467605, -0.00078890, 181.97909950, 58517.81538729, 131.60246718, 0.00268329, 76.67984255, -0.27769418}
	elemEarth   = keplerian{1.00000261, 0.00000562, 0.01671123, -0.00004392, -0.00001531, -0.01294668, 100.46457166, 35999.37244981, 102.93768193, 0.32327364, 0, 0}
	elemMars    = keplerian{1.52371034, 0.00001847, 0.09339410, 0.00007882, 1.84969142, -0.00813131, -4.55343205, 19140.30268499, -23.94362959, 0.44441088, 49.55953891, -0.29257343}
	elemJupiter = keplerian{5.20288700, -0.00011607, 0.04838624, -0.00013253, 1.30439695, -0.00183714, 34.39644051, 3034.74612775, 14.72847983, 0.21252668, 100.47390909, 0.20469106}
	elemSaturn  = keplerian{9.53667594, -0.00125060, 0.05386179, -0.00050991, 2.48599187, 0.00193609, 49.95424423, 1222.49362201, 92.59887831, -0.41897216, 113.66242448, -0.28867794}
	elemUranus  = keplerian{19.18916464, -0.00196176, 0.04725744, -0.00004397, 0.77263783, -0.00242939, 313.23810451, 428.48202785, 170.95427630, 0.40805281, 74.01692503, 0.04240589}
	elemNeptune = keplerian{30.06992276, 0.00026291, 0.00859048, 0.00005105, 1.77004347, 0.00035372, -55.12002969, 218.45945325, 44.96476227, -0.32241464, 131.78422574, -0.00508664}
)

// heliocentric returns J2000 ecliptic rectangular coordinates in AU.
func (k keplerian) heliocentric(jde float64) (x, y, z float64) {
	t := j2000Century(jde)
	a := k.a + k.aDot*t
	e := k.e + k.eDot*t
	i := unit.AngleFromDeg(k.i + k.iDot*t)
	l := k.l + k.lDot*t
	peri := k.peri + k.periDot*t
	node := unit.AngleFromDeg(k.node + k.nodeDot*t)

	M := unit.AngleFromDeg(l - peri).Mod1()
	E := kepler.Kepler3(e, M)
	ν := kepler.True(E, e)
	r := kepler.Radius(E, e, a)
	ω := unit.AngleFromDeg(peri) - node
	return orbitToEcliptic(r, ν, ω, node, i)
}

// orbitToEcliptic rotates a position at true anomaly ν and radius r out of the
// orbital plane into ecliptic rectangular coordinates.
func orbitToEcliptic(r float64, ν, ω, node, inc unit.Angle) (x, y, z float64) {
	u := (ω + ν).Rad()
	sinU, cosU := math.Sincos(u)
	sinN, cosN := math.Sincos(node.Rad())
	sinI, cosI := math.Sincos(inc.Rad())
	x = r * (cosN*cosU - sinN*sinU*cosI)
	y = r * (sinN*cosU + cosN*sinU*cosI)
	z = r * sinU * sinI
	return x, y, z
}

// eclipticJ2000ToEquatorial converts J2000 ecliptic rectangular coordinates to
// right ascension and declination on the J2000 mean equator, plus the distance.
func eclipticJ2000ToEquatorial(x, y, z float64) (unit.RA, unit.Angle, float64) {
	sinε, cosε := math.Sincos(unit.AngleFromDeg(23.4392911).Rad())
	xe := x
	ye := y*cosε - z*sinε
	ze := y*sinε + z*cosε
	ρ := math.Sqrt(xe*xe + ye*ye + ze*ze)
	return unit.RAFromRad(math.Atan2(ye, xe)), unit.Angle(math.Asin(ze / ρ)), ρ
}

// Planet is one of the seven major planets other than Earth. With VSOP87 files
// loaded, the full theory is used; otherwise positions come from mean elements
// (about an arcminute for the inner planets, good to a few seconds of rise time).
type Planet struct {
	name  string
	elem  keplerian
	vsop  *pp.V87Planet
	earth *pp.V87Planet
}

var planetOrder = []struct {
	name string
	vsop int
	elem keplerian
}{
	{"Mercury", pp.Mercury, elemMercury},
	{"Venus", pp.Venus, elemVenus},
	{"Mars", pp.Mars, elemMars},
	{"Jupiter", pp.Jupiter, elemJupiter},
	{"Saturn", pp.Saturn, elemSaturn},
	{"Uranus", pp.Uranus, elemUranus},
	{"Neptune", pp.Neptune, elemNeptune},
}

// Planets builds the seven planets. vsop87Dir may be empty, in which case the
// built-in mean elements are used.
func Planets(vsop87Dir string) ([]*Planet, error) {
	var earth *pp.V87Planet
	if vsop87Dir != "" {
		var err error
		earth, err = pp.LoadPlanetPath(pp.Earth, vsop87Dir)
		if err != nil {
			return nil, fmt.Errorf("loading VSOP87 earth from %s: %w", vsop87Dir, err)
		}
	}

	planets := make([]*Planet, 0, len(planetOrder))
	for _, po := range planetOrder {
		p := &Planet{name: po.name, elem: po.elem}
		if earth != nil {
			v, err := pp.LoadPlanetPath(po.vsop, vsop87Dir)
			if err != nil {
				return nil, fmt.Errorf("loading VSOP87 %s from %s: %w", po.name, vsop87Dir, err)
			}
			p.vsop = v
			p.earth = earth
		}
		planets = append(planets, p)
	}
	return planets, nil
}

func (p *Planet) Name() string { return p.name }

func (p *Planet) Equatorial(t time.Time) (unit.RA, unit.Angle, float64) {
	j := jde(t)
	if p.vsop != nil {
		α, δ := elliptic.Position(p.vsop, p.earth, j)
		return α, δ, p.vsopDistance(j)
	}

	px, py, pz := p.elem.heliocentric(j)
	ex, ey, ez := elemEarth.heliocentric(j)
	α, δ, Δ := eclipticJ2000ToEquatorial(px-ex, py-ey, pz-ez)

	// one light-time correction
	lt := Δ * 0.0057755183 // days per AU
	px, py, pz = p.elem.heliocentric(j - lt)
	α, δ, _ = eclipticJ2000ToEquatorial(px-ex, py-ey, pz-ez)

	α, δ = precessFromJ2000(α, δ, j)
	return α, δ, Δ
}

// HeliocentricDistance is the planet's distance from the sun in AU.
func (p *Planet) HeliocentricDistance(t time.Time) float64 {
	x, y, z := p.elem.heliocentric(jde(t))
	return math.Sqrt(x*x + y*y + z*z)
}

func (p *Planet) vsopDistance(j float64) float64 {
	l, b, r := p.vsop.Position(j)
	l0, b0, r0 := p.earth.Position(j)
	x, y, z := sphericalToRect(l, b, r)
	x0, y0, z0 := sphericalToRect(l0, b0, r0)
	return math.Sqrt((x-x0)*(x-x0) + (y-y0)*(y-y0) + (z-z0)*(z-z0))
}

func sphericalToRect(l, b unit.Angle, r float64) (x, y, z float64) {
	sinB, cosB := math.Sincos(b.Rad())
	sinL, cosL := math.Sincos(l.Rad())
	return r * cosB * cosL, r * cosB * sinL, r * sinB
}

func (p *Planet) StandardAltitude() unit.Angle { return rise.Stdh0Stellar }

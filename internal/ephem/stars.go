package ephem

import (
	"sort"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/precess"
	"github.com/soniakeys/meeus/v3/rise"
	"github.com/soniakeys/unit"
)

// Star is a fixed star at its catalog J2000 place, precessed to date.
// Proper motion and aberration are ignored (well under an arcminute for a
// few decades, a couple of seconds of rise time).
type Star struct {
	name string
	ra   unit.RA    // J2000
	dec  unit.Angle // J2000
	vmag float64
}

// NewStar builds a star from J2000 right ascension in hours and declination in degrees.
func NewStar(name string, raHours, decDeg, vmag float64) *Star {
	return &Star{
		name: name,
		ra:   unit.RAFromHour(raHours),
		dec:  unit.AngleFromDeg(decDeg),
		vmag: vmag,
	}
}

func (s *Star) Name() string { return s.name }

// Magnitude is the visual magnitude.
func (s *Star) Magnitude() float64 { return s.vmag }

func (s *Star) Equatorial(t time.Time) (unit.RA, unit.Angle, float64) {
	α, δ := precessFromJ2000(s.ra, s.dec, jde(t))
	return α, δ, 0
}

func (s *Star) StandardAltitude() unit.Angle { return rise.Stdh0Stellar }

type starRecord struct {
	name    string
	raHours float64
	decDeg  float64
	vmag    float64
}

// brightStars are the navigational and zodiacal stars the watcher tracks by default,
// plus the other first magnitude stars.
var brightStars = []starRecord{
	{"Achernar", 1.628556, -57.236753, 0.46},
	{"Acrux", 12.443311, -63.099092, 0.77},
	{"Alcyone", 3.791411, 24.105136, 2.87},
	{"Aldebaran", 4.598677, 16.509301, 0.85},
	{"Algol", 3.136148, 40.955648, 2.12},
	{"Alnilam", 5.603559, -1.201919, 1.69},
	{"Altair", 19.846388, 8.868322, 0.76},
	{"Antares", 16.490128, -26.432003, 1.06},
	{"Arcturus", 14.261020, 19.182410, -0.05},
	{"Bellatrix", 5.418851, 6.349703, 1.64},
	{"Betelgeuse", 5.919529, 7.407063, 0.42},
	{"Canopus", 6.399195, -52.695661, -0.74},
	{"Capella", 5.278155, 45.997991, 0.08},
	{"Castor", 7.576634, 31.888276, 1.58},
	{"Deneb", 20.690532, 45.280338, 1.25},
	{"Denebola", 11.817663, 14.572058, 2.13},
	{"Dubhe", 11.062130, 61.751033, 1.79},
	{"Elnath", 5.438198, 28.607452, 1.65},
	{"Fomalhaut", 22.960838, -29.622236, 1.16},
	{"Hadar", 14.063729, -60.373039, 0.61},
	{"Mimosa", 12.795359, -59.688764, 1.25},
	{"Mirfak", 3.405380, 49.861179, 1.79},
	{"Nunki", 18.921090, -26.296722, 2.05},
	{"Polaris", 2.530301, 89.264109, 1.98},
	{"Pollux", 7.755264, 28.026199, 1.14},
	{"Procyon", 7.655033, 5.224993, 0.34},
	{"Regulus", 10.139532, 11.967207, 1.35},
	{"Rigel", 5.242298, -8.201640, 0.13},
	{"Rigil Kentaurus", 14.660765, -60.833976, -0.01},
	{"Sirius", 6.752481, -16.716116, -1.46},
	{"Spica", 13.419883, -11.161322, 0.97},
	{"Vega", 18.615649, 38.783692, 0.03},
	{"Zubenelgenubi", 14.847977, -16.041778, 2.75},
}

var starIndex = func() map[string]starRecord {
	m := make(map[string]starRecord, len(brightStars))
	for _, r := range brightStars {
		m[r.name] = r
	}
	return m
}()

// LookupStar returns the named star from the built-in table.
func LookupStar(name string) (*Star, bool) {
	r, ok := starIndex[name]
	if !ok {
		return nil, false
	}
	return NewStar(r.name, r.raHours, r.decDeg, r.vmag), true
}

// StarNames lists the built-in star table, sorted.
func StarNames() []string {
	names := make([]string, 0, len(brightStars))
	for _, r := range brightStars {
		names = append(names, r.name)
	}
	sort.Strings(names)
	return names
}

// precessFromJ2000 precesses a J2000 mean place to the mean equator of date
// (Meeus ch. 21).
func precessFromJ2000(α unit.RA, δ unit.Angle, jde float64) (unit.RA, unit.Angle) {
	eq := &coord.Equatorial{RA: α, Dec: δ}
	precess.NewPrecessor(2000, base.JDEToJulianYear(jde)).Precess(eq, eq)
	return eq.RA, eq.Dec
}

package ephem

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/rise"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/unit"
	"github.com/star/skywatch/internal/transform"
)

const (
	searchWindow = 48 * time.Hour
	searchStep   = 10 * time.Minute
	searchTol    = time.Second
)

// Observer is a fixed place on the earth. Longitude is east positive.
type Observer struct {
	Name      string
	Lat       float64 // degrees
	Lon       float64 // degrees, east positive
	Elevation float64 // meters

	coord globe.Coord // meeus convention, longitude west positive
	site  transform.Site
}

// NewObserver validates the coordinates and precomputes the earth-fixed site.
func NewObserver(name string, latDeg, lonDeg, elevationM float64) (*Observer, error) {
	if math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90 {
		return nil, fmt.Errorf("observer latitude %v out of range [-90, 90]", latDeg)
	}
	if math.IsNaN(lonDeg) || lonDeg < -180 || lonDeg > 360 {
		return nil, fmt.Errorf("observer longitude %v out of range [-180, 360]", lonDeg)
	}
	if lonDeg > 180 {
		lonDeg -= 360
	}
	return &Observer{
		Name:      name,
		Lat:       latDeg,
		Lon:       lonDeg,
		Elevation: elevationM,
		coord: globe.Coord{
			Lat: unit.AngleFromDeg(latDeg),
			Lon: unit.AngleFromDeg(-lonDeg),
		},
		site: transform.NewSite(latDeg, lonDeg, elevationM),
	}, nil
}

// Horizontal returns azimuth (degrees from north, through east) and altitude
// (degrees) of b at t. The place is geocentric; lunar parallax is folded into
// the moon's standard altitude instead.
func (o *Observer) Horizontal(b Body, t time.Time) (az, alt float64) {
	α, δ, _ := b.Equatorial(t)
	A, h := coord.EqToHz(α, δ, o.coord.Lat, o.coord.Lon, sidereal.Apparent(julian.TimeToJD(t.UTC())))
	// meeus measures azimuth from the south
	return normDeg(A.Deg() + 180), h.Deg()
}

// hourAngle of b at t in radians.
func (o *Observer) hourAngle(b Body, t time.Time) float64 {
	α, _, _ := b.Equatorial(t)
	st := sidereal.Apparent(julian.TimeToJD(t.UTC()))
	return st.Rad() - o.coord.Lon.Rad() - α.Rad()
}

// NextRising returns the first time after start that b's center reaches its
// standard altitude while climbing, with the azimuth at that moment.
func (o *Observer) NextRising(b Body, start time.Time) (time.Time, float64, error) {
	return o.horizonCrossing(b, start, true)
}

// NextSetting is NextRising for the descending crossing.
func (o *Observer) NextSetting(b Body, start time.Time) (time.Time, float64, error) {
	return o.horizonCrossing(b, start, false)
}

// NextTransit returns the next upper culmination after start and the altitude there.
func (o *Observer) NextTransit(b Body, start time.Time) (time.Time, float64, error) {
	return o.meridianCrossing(b, start, 1)
}

// NextAntitransit returns the next lower culmination after start and the altitude there.
func (o *Observer) NextAntitransit(b Body, start time.Time) (time.Time, float64, error) {
	return o.meridianCrossing(b, start, -1)
}

func (o *Observer) horizonCrossing(b Body, start time.Time, rising bool) (time.Time, float64, error) {
	if s, ok := b.(*Star); ok {
		if err := o.starCircumpolar(s, start); err != nil {
			return time.Time{}, 0, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}

	h0 := b.StandardAltitude().Deg()
	f := func(t time.Time) float64 {
		_, alt := o.Horizontal(b, t)
		if rising {
			return alt - h0
		}
		return h0 - alt
	}

	t, ok := crossing(start, f)
	if !ok {
		_, alt := o.Horizontal(b, start)
		if alt > h0 {
			return time.Time{}, 0, fmt.Errorf("%s: %w", b.Name(), ErrAlwaysUp)
		}
		return time.Time{}, 0, fmt.Errorf("%s: %w", b.Name(), ErrNeverUp)
	}
	az, _ := o.Horizontal(b, t)
	return t, az, nil
}

// meridianCrossing finds the zero of sign*sin(H) going upward: sign 1 is the
// upper meridian, -1 the lower.
func (o *Observer) meridianCrossing(b Body, start time.Time, sign float64) (time.Time, float64, error) {
	f := func(t time.Time) float64 {
		return sign * math.Sin(o.hourAngle(b, t))
	}
	t, ok := crossing(start, f)
	if !ok {
		return time.Time{}, 0, fmt.Errorf("%s: no meridian crossing within %s", b.Name(), searchWindow)
	}
	_, alt := o.Horizontal(b, t)
	return t, alt, nil
}

// starCircumpolar uses the closed-form rise times to reject stars that never
// cross the horizon without scanning two days of altitudes.
func (o *Observer) starCircumpolar(s *Star, t time.Time) error {
	α, δ, _ := s.Equatorial(t)
	th0 := sidereal.Apparent0UT(julian.TimeToJD(t.UTC()))
	_, _, _, err := rise.ApproxTimes(o.coord, s.StandardAltitude(), th0, α, δ)
	if err == nil {
		return nil
	}
	if !errors.Is(err, rise.ErrorCircumpolar) {
		return err
	}
	lowerCulmination := math.Abs(o.Lat+δ.Deg()) - 90
	if lowerCulmination > s.StandardAltitude().Deg() {
		return ErrAlwaysUp
	}
	return ErrNeverUp
}

// crossing scans f from start in searchStep increments for the first upward
// zero crossing within searchWindow, then bisects it to searchTol. The result
// is always strictly after start.
func crossing(start time.Time, f func(time.Time) float64) (time.Time, bool) {
	prevT, prev := start, f(start)
	for elapsed := searchStep; elapsed <= searchWindow; elapsed += searchStep {
		t := start.Add(elapsed)
		v := f(t)
		if prev < 0 && v >= 0 {
			return bisect(prevT, t, f), true
		}
		prevT, prev = t, v
	}
	return time.Time{}, false
}

// bisect narrows [lo, hi], with f(lo) < 0 <= f(hi), and returns the upper bound.
func bisect(lo, hi time.Time, f func(time.Time) float64) time.Time {
	for hi.Sub(lo) > searchTol {
		mid := lo.Add(hi.Sub(lo) / 2)
		if f(mid) >= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

func normDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

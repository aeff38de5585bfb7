package ephem

import (
	"fmt"
	"time"

	"github.com/star/skywatch/internal/transform"
)

const (
	passCoarseStep  = 30 * time.Second
	passFineStep    = time.Second
	passWindow      = 72 * time.Hour
	minPassDuration = 10 * time.Second
)

// Pass is one satellite pass above the observer's horizon.
type Pass struct {
	Rise       time.Time
	RiseAz     float64 // degrees
	Transit    time.Time
	TransitAlt float64 // degrees, maximum elevation
	Set        time.Time
	SetAz      float64 // degrees
	// SubPoint is the ground point under the satellite at Transit.
	SubPoint transform.GeodeticPoint
}

// Duration is the time from rise to set.
func (p Pass) Duration() time.Duration { return p.Set.Sub(p.Rise) }

// NextPass returns the first pass whose rise is strictly after start. A pass
// already in progress at start is skipped. Passes shorter than ten seconds are
// treated as grazes and ignored.
func (o *Observer) NextPass(s *Satellite, start time.Time) (Pass, error) {
	end := start.Add(passWindow)

	if _, _, err := o.Look(s, start); err != nil {
		return Pass{}, err
	}

	// Coarse scan for a sample above the horizon, remembering the last one
	// below it; a pass in progress at start is walked past first.
	t := start
	below := time.Time{}
	for t.Before(end) {
		la, _, err := o.Look(s, t)
		if err != nil {
			t = t.Add(passCoarseStep)
			continue
		}
		if la.ElevationDeg <= 0 {
			below = t
		} else if !below.IsZero() {
			p, ok, windowEnd := o.refinePass(s, below, end)
			if ok && p.Duration() >= minPassDuration {
				return p, nil
			}
			t = windowEnd
			below = time.Time{}
			continue
		}
		t = t.Add(passCoarseStep)
	}
	return Pass{}, fmt.Errorf("%s: %w", s.Name(), ErrNoPass)
}

// refinePass fine-scans forward from a moment known to be below the horizon.
// It returns the pass, whether one was found, and where the coarse scan
// should resume.
func (o *Observer) refinePass(s *Satellite, from, windowEnd time.Time) (Pass, bool, time.Time) {
	var (
		p         Pass
		foundRise bool
		ecefMax   transform.PositionECEF
	)

	t := from.Add(passFineStep)
	for t.Before(windowEnd) {
		la, ecef, err := o.Look(s, t)
		if err != nil {
			t = t.Add(passFineStep)
			continue
		}
		above := la.ElevationDeg > 0

		if above && !foundRise {
			foundRise = true
			p.Rise, p.RiseAz = t, la.AzimuthDeg
			p.Transit, p.TransitAlt = t, la.ElevationDeg
			ecefMax = ecef
		}
		if above && la.ElevationDeg > p.TransitAlt {
			p.Transit, p.TransitAlt = t, la.ElevationDeg
			ecefMax = ecef
		}
		if !above && foundRise {
			p.Set, p.SetAz = t, la.AzimuthDeg
			p.SubPoint = transform.Geodetic(ecefMax)
			return p, true, t
		}
		t = t.Add(passFineStep)
	}

	// still up at the end of the window
	if foundRise {
		if la, _, err := o.Look(s, t); err == nil {
			p.SetAz = la.AzimuthDeg
		}
		p.Set = t
		p.SubPoint = transform.Geodetic(ecefMax)
		return p, true, t
	}
	return Pass{}, false, t
}

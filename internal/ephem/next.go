package ephem

import (
	"fmt"
	"time"

	"github.com/star/skywatch/internal/event"
)

// Next computes the first occurrence of kind for target strictly after start,
// returning the instant and the event's azimuth or altitude in degrees.
func (o *Observer) Next(target Target, kind event.Kind, start time.Time) (time.Time, float64, error) {
	switch tg := target.(type) {
	case *Satellite:
		if !kind.IsPass() {
			return time.Time{}, 0, fmt.Errorf("%w: %s for satellite %s", ErrUnsupportedKind, kind, tg.Name())
		}
		p, err := o.NextPass(tg, start)
		if err != nil {
			return time.Time{}, 0, err
		}
		switch kind {
		case event.PassRise:
			return p.Rise, p.RiseAz, nil
		case event.PassTransit:
			return p.Transit, p.TransitAlt, nil
		default:
			return p.Set, p.SetAz, nil
		}

	case Body:
		switch kind {
		case event.Rise:
			return o.NextRising(tg, start)
		case event.Set:
			return o.NextSetting(tg, start)
		case event.Transit:
			return o.NextTransit(tg, start)
		case event.Antitransit:
			return o.NextAntitransit(tg, start)
		}
		return time.Time{}, 0, fmt.Errorf("%w: %s for %s", ErrUnsupportedKind, kind, tg.Name())
	}
	return time.Time{}, 0, fmt.Errorf("%w: %s for %T", ErrUnsupportedKind, kind, target)
}

// KindsFor filters the configured kinds to the ones that apply to target.
func KindsFor(target Target, kinds []event.Kind) []event.Kind {
	_, isSat := target.(*Satellite)
	var out []event.Kind
	for _, k := range kinds {
		if k.IsPass() == isSat {
			out = append(out, k)
		}
	}
	return out
}

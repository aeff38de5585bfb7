// Package event defines the celestial events that flow through the scheduler.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happens to a body at an event's date.
type Kind string

const (
	Rise        Kind = "rise"
	Transit     Kind = "transit"
	Set         Kind = "set"
	Antitransit Kind = "antitransit"

	// Satellite pass components.
	PassRise    Kind = "pass_rise"
	PassTransit Kind = "pass_transit"
	PassSet     Kind = "pass_set"
)

var allKinds = []Kind{Rise, Transit, Set, Antitransit, PassRise, PassTransit, PassSet}

// StandardKinds are the kinds tracked for non-satellite bodies unless configured otherwise.
func StandardKinds() []Kind {
	return []Kind{Rise, Transit, Set}
}

// PassKinds are the kinds tracked for earth satellites.
func PassKinds() []Kind {
	return []Kind{PassRise, PassTransit, PassSet}
}

// ParseKind converts a config or query string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// IsPass reports whether k belongs to a satellite pass.
func (k Kind) IsPass() bool {
	return k == PassRise || k == PassTransit || k == PassSet
}

// MeasuresAltitude reports whether the event value is an altitude (transits)
// rather than an azimuth (horizon crossings).
func (k Kind) MeasuresAltitude() bool {
	return k == Transit || k == Antitransit || k == PassTransit
}

// Event is a single forecast occurrence. Values are never mutated after
// construction; rescheduling builds a new Event with a new ID.
type Event struct {
	ID    uuid.UUID
	Body  string
	Kind  Kind
	Date  time.Time
	AzAlt float64 // degrees; azimuth from north or altitude, see Kind.MeasuresAltitude
}

// New creates an event with a fresh instance ID.
func New(body string, kind Kind, date time.Time, azalt float64) Event {
	return Event{
		ID:    uuid.New(),
		Body:  body,
		Kind:  kind,
		Date:  date,
		AzAlt: azalt,
	}
}

// Key identifies the (body, kind) pair an event belongs to.
func (e Event) Key() string {
	return Key(e.Body, e.Kind)
}

// Key builds the queue key for a body and kind.
func Key(body string, kind Kind) string {
	return body + ":" + string(kind)
}

// String formats the event the way the watcher logs it.
func (e Event) String() string {
	unit := "az"
	if e.Kind.MeasuresAltitude() {
		unit = "alt"
	}
	return fmt.Sprintf("%s %s %s %s=%.0f°", e.Date.UTC().Format(time.RFC3339), e.Body, e.Kind, unit, e.AzAlt)
}

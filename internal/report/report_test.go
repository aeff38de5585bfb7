package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func columbus(t *testing.T) *ephem.Observer {
	t.Helper()
	o, err := ephem.NewObserver("Columbus", 39.9612, -82.9988, 275)
	require.NoError(t, err)
	return o
}

func TestPositionsSunUpAndDown(t *testing.T) {
	o := columbus(t)
	sun := ephem.Sun{}

	noon := Positions(o, []ephem.Body{sun}, time.Date(2026, 3, 20, 17, 40, 0, 0, time.UTC))
	require.Len(t, noon, 1)
	assert.True(t, noon[0].Up)
	assert.InDelta(t, 50.1, noon[0].Alt, 1)
	assert.InDelta(t, 180, noon[0].Az, 2)
	assert.InDelta(t, 1.0, noon[0].Distance, 0.02)

	midnight := Positions(o, []ephem.Body{sun}, time.Date(2026, 3, 20, 5, 40, 0, 0, time.UTC))
	assert.False(t, midnight[0].Up)
	assert.Less(t, midnight[0].Alt, -40.0)
}

func TestWritePositions(t *testing.T) {
	o := columbus(t)
	sirius, ok := ephem.LookupStar("Sirius")
	require.True(t, ok)

	var buf bytes.Buffer
	ps := Positions(o, []ephem.Body{ephem.Sun{}, sirius}, time.Date(2026, 3, 20, 17, 40, 0, 0, time.UTC))
	require.NoError(t, WritePositions(&buf, ps))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "BODY"))
	assert.Contains(t, lines[1], "Sun")
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[2], "Sirius")
	assert.Contains(t, lines[2], "-", "stars have no distance")
	assert.Contains(t, lines[2], "°")
}

func TestSeparations(t *testing.T) {
	sirius, _ := ephem.LookupStar("Sirius")
	canopus, _ := ephem.LookupStar("Canopus")

	seps := Separations([]Pair{{A: sirius, B: canopus}}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, seps, 1)
	assert.InDelta(t, 36.25, seps[0].Angle.Deg(), 0.1)

	var buf bytes.Buffer
	require.NoError(t, WriteSeparations(&buf, seps))
	assert.Contains(t, buf.String(), "Sirius - Canopus")
}

func TestWriteUpcoming(t *testing.T) {
	date := time.Date(2026, 3, 20, 11, 36, 0, 0, time.UTC)
	events := []event.Event{
		event.New("Sun", event.Rise, date, 89.5),
		event.New("Sun", event.Transit, date.Add(6*time.Hour), 50.1),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteUpcoming(&buf, events, time.UTC))
	out := buf.String()
	assert.Contains(t, out, "2026-03-20 11:36:00 UTC")
	assert.Contains(t, out, "az 90°")
	assert.Contains(t, out, "alt 50°")
}

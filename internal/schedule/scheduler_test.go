package schedule

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type named string

func (n named) Name() string { return string(n) }

// lookup resolves any name it currently holds.
type lookup struct {
	mu    sync.Mutex
	names map[string]bool
}

func newLookup(names ...string) *lookup {
	l := &lookup{names: make(map[string]bool)}
	l.set(names...)
	return l
}

func (l *lookup) set(names ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = make(map[string]bool, len(names))
	for _, n := range names {
		l.names[n] = true
	}
}

func (l *lookup) Select(names []string) ([]ephem.Target, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var found []ephem.Target
	var missing []string
	for _, n := range names {
		if l.names[n] {
			found = append(found, named(n))
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}

// forecaster returns start plus a fixed period per kind unless override
// handles the call.
type forecaster struct {
	periods  map[event.Kind]time.Duration
	override func(name string, kind event.Kind, start time.Time, call int) (time.Time, bool, error)

	mu    sync.Mutex
	calls map[string]int
}

func (f *forecaster) Next(t ephem.Target, kind event.Kind, start time.Time) (time.Time, float64, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	key := event.Key(t.Name(), kind)
	f.calls[key]++
	call := f.calls[key]
	f.mu.Unlock()

	if f.override != nil {
		date, handled, err := f.override(t.Name(), kind, start, call)
		if handled {
			return date, 0, err
		}
	}
	return start.Add(f.periods[kind]), 42, nil
}

func (f *forecaster) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type firing struct {
	ev event.Event
	at time.Time
}

type recorder struct {
	mu     sync.Mutex
	events []firing
}

func (r *recorder) Notify(_ context.Context, ev event.Event) {
	at := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, firing{ev: ev, at: at})
}

func (r *recorder) all() []firing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]firing(nil), r.events...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testConfig(bodies ...string) Config {
	return Config{
		Bodies:           bodies,
		Kinds:            []event.Kind{event.Rise, event.Set},
		MaxSleep:         10 * time.Millisecond,
		RescheduleOffset: time.Millisecond,
		Workers:          2,
	}
}

// start runs s in the background and returns a stop func that cancels it and
// checks Run's result.
func start(t *testing.T, s *Scheduler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	require.Eventually(t, s.Seeded, 2*time.Second, time.Millisecond)
	return func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func pendingKeys(q *Queue) []string {
	var keys []string
	for _, ev := range q.Snapshot() {
		keys = append(keys, ev.Key())
	}
	return keys
}

func TestSchedulerFiresInOrderAndReschedules(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &forecaster{periods: map[event.Kind]time.Duration{
		event.Rise: 30 * time.Millisecond,
		event.Set:  55 * time.Millisecond,
	}}
	rec := &recorder{}
	s := New(f, newLookup("Sun", "Moon"), rec, testConfig("Sun", "Moon"), testLogger)
	stop := start(t, s)

	require.Eventually(t, func() bool { return rec.len() >= 12 }, 5*time.Second, 5*time.Millisecond)
	stop()

	fired := rec.all()
	last := make(map[string]time.Time)
	for i, fr := range fired {
		assert.False(t, fr.at.Before(fr.ev.Date), "event %d (%s) fired %v early", i, fr.ev.Key(), fr.ev.Date.Sub(fr.at))
		if prev, ok := last[fr.ev.Key()]; ok {
			assert.True(t, fr.ev.Date.After(prev), "%s rescheduled to %v, not after %v", fr.ev.Key(), fr.ev.Date, prev)
		}
		last[fr.ev.Key()] = fr.ev.Date
	}
	assert.Len(t, last, 4, "every (body, kind) fired at least once")
}

func TestSchedulerOnePendingPerKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &forecaster{periods: map[event.Kind]time.Duration{
		event.Rise: time.Hour,
		event.Set:  2 * time.Hour,
	}}
	s := New(f, newLookup("Sun", "Moon", "Mars"), nil, testConfig("Sun", "Moon", "Mars"), testLogger)
	stop := start(t, s)
	defer stop()

	keys := pendingKeys(s.Queue())
	assert.ElementsMatch(t, []string{
		"Sun:rise", "Sun:set", "Moon:rise", "Moon:set", "Mars:rise", "Mars:set",
	}, keys)

	// a second resync must not duplicate anything already queued
	s.Resync("test")
	time.Sleep(30 * time.Millisecond)
	assert.ElementsMatch(t, keys, pendingKeys(s.Queue()))
	assert.Equal(t, 1, f.count("Sun:rise"))
}

func TestSchedulerSwapsInEarlierEvent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &forecaster{periods: map[event.Kind]time.Duration{event.Rise: time.Hour}}
	rec := &recorder{}
	cfg := testConfig("Sun")
	cfg.Kinds = []event.Kind{event.Rise}
	cfg.MaxSleep = time.Minute
	s := New(f, newLookup("Sun"), rec, cfg, testLogger)
	stop := start(t, s)
	defer stop()

	// wait for the consumer to check out the only event
	require.Eventually(t, func() bool {
		_, ok := s.Queue().Peek()
		return !ok
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Queue().Push(event.New("Vega", event.Transit, time.Now().Add(20*time.Millisecond), 80)))

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "Vega", rec.all()[0].ev.Body)
	assert.Equal(t, []string{"Sun:rise"}, pendingKeys(s.Queue()))
}

func TestSchedulerCircumpolarNotQueued(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &forecaster{
		periods: map[event.Kind]time.Duration{
			event.Rise: time.Hour,
			event.Set:  20 * time.Millisecond,
		},
		override: func(name string, kind event.Kind, _ time.Time, call int) (time.Time, bool, error) {
			switch {
			case name == "Polaris":
				return time.Time{}, true, fmt.Errorf("Polaris: %w", ephem.ErrAlwaysUp)
			case name == "Moon" && kind == event.Set && call > 1:
				return time.Time{}, true, fmt.Errorf("Moon: %w", ephem.ErrNeverUp)
			}
			return time.Time{}, false, nil
		},
	}
	rec := &recorder{}
	s := New(f, newLookup("Polaris", "Moon"), rec, testConfig("Polaris", "Moon"), testLogger)
	stop := start(t, s)
	defer stop()

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.count("Moon:set") == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, []string{"Moon:rise"}, pendingKeys(s.Queue()))
	assert.Equal(t, 1, f.count("Polaris:rise"))
}

func TestSchedulerDropsNotLater(t *testing.T) {
	defer goleak.VerifyNone(t)

	var first time.Time
	f := &forecaster{
		override: func(_ string, _ event.Kind, start time.Time, call int) (time.Time, bool, error) {
			if call == 1 {
				first = start.Add(20 * time.Millisecond)
			}
			return first, true, nil
		},
	}
	rec := &recorder{}
	cfg := testConfig("Sun")
	cfg.Kinds = []event.Kind{event.Transit}
	s := New(f, newLookup("Sun"), rec, cfg, testLogger)
	stop := start(t, s)
	defer stop()

	require.Eventually(t, func() bool { return f.count("Sun:transit") == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.len())
	assert.Empty(t, pendingKeys(s.Queue()))
}

func TestSchedulerResync(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &forecaster{periods: map[event.Kind]time.Duration{
		event.Rise: time.Hour,
		event.Set:  2 * time.Hour,
	}}
	lk := newLookup("C/2024 G3", "Sun")
	cfg := testConfig("C/2024 G3", "C/2026 A1", "Sun")
	s := New(f, lk, nil, cfg, testLogger)
	stop := start(t, s)
	defer stop()

	assert.ElementsMatch(t, []string{"C/2024 G3:rise", "C/2024 G3:set", "Sun:rise", "Sun:set"}, pendingKeys(s.Queue()))

	lk.set("C/2026 A1", "Sun")
	s.Resync("comets")

	want := []string{"C/2026 A1:rise", "C/2026 A1:set", "Sun:rise", "Sun:set"}
	require.Eventually(t, func() bool {
		got := pendingKeys(s.Queue())
		sort.Strings(got)
		return slices.Equal(want, got)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.count("Sun:rise"), "existing bodies are not recomputed")
}

func TestSchedulerRunReturnsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &forecaster{periods: map[event.Kind]time.Duration{event.Rise: time.Hour, event.Set: time.Hour}}
	s := New(f, newLookup("Sun"), nil, testConfig("Sun"), testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestPreview(t *testing.T) {
	f := &forecaster{periods: map[event.Kind]time.Duration{
		event.Rise: 24 * time.Hour,
		event.Set:  10 * time.Hour,
	}}
	rec := &recorder{}
	s := New(f, newLookup("Sun", "Moon"), rec, testConfig("Sun", "Moon", "Pluto"), testLogger)

	from := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	evs, err := s.Preview(context.Background(), from, 10)
	require.NoError(t, err)
	require.Len(t, evs, 10)

	last := make(map[string]time.Time)
	for i, ev := range evs {
		assert.True(t, ev.Date.After(from))
		if i > 0 {
			assert.False(t, ev.Date.Before(evs[i-1].Date), "preview out of order at %d", i)
		}
		if prev, ok := last[ev.Key()]; ok {
			assert.True(t, ev.Date.After(prev))
		}
		last[ev.Key()] = ev.Date
	}
	assert.Equal(t, "set", string(evs[0].Kind))
	assert.Zero(t, rec.len(), "preview never notifies")
	assert.Zero(t, s.Queue().Len(), "preview leaves the live queue alone")
}

func TestSchedulerSeededAfterEarlyResync(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &forecaster{
		periods: map[event.Kind]time.Duration{event.Rise: time.Hour, event.Set: 2 * time.Hour},
		override: func(string, event.Kind, time.Time, int) (time.Time, bool, error) {
			time.Sleep(5 * time.Millisecond)
			return time.Time{}, false, nil
		},
	}
	bodies := []string{"Sun", "Moon", "Mars", "C/2024 G3"}
	s := New(f, newLookup(bodies...), nil, testConfig(bodies...), testLogger)

	// A catalog load publishes before Run starts.
	s.Resync("comets")
	stop := start(t, s)
	defer stop()

	assert.Equal(t, 2*len(bodies), s.Queue().Len(), "seeded must cover every body")
}

type countingStats struct {
	mu    sync.Mutex
	drops map[string]int
}

func (c *countingStats) dropped(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drops == nil {
		c.drops = make(map[string]int)
	}
	c.drops[reason]++
}

func (c *countingStats) queueDepth(int) {}

func (c *countingStats) count(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drops[reason]
}

func TestPreviewDoesNotCount(t *testing.T) {
	f := &forecaster{
		periods: map[event.Kind]time.Duration{event.Rise: time.Hour, event.Set: 2 * time.Hour},
		override: func(name string, _ event.Kind, _ time.Time, _ int) (time.Time, bool, error) {
			if name == "Polaris" {
				return time.Time{}, true, fmt.Errorf("Polaris: %w", ephem.ErrAlwaysUp)
			}
			return time.Time{}, false, nil
		},
	}
	s := New(f, newLookup("Sun", "Polaris"), nil, testConfig("Sun", "Polaris"), testLogger)
	live := &countingStats{}
	s.stats = live

	from := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	evs, err := s.Preview(context.Background(), from, 4)
	require.NoError(t, err)
	require.Len(t, evs, 4)
	assert.Zero(t, live.count("circumpolar"), "preview leaked into live counters")

	s.seed(context.Background(), []ephem.Target{named("Polaris")}, from)
	assert.Equal(t, 2, live.count("circumpolar"))
}

// Package schedule keeps the perpetual stream of upcoming events: it seeds one
// event per tracked (body, kind), fires each at its date, and queues the next
// occurrence of the same pair as soon as one fires.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/event"
	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/notify"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxSleep         = 10 * time.Second
	DefaultRescheduleOffset = time.Minute
)

// Forecaster computes the next occurrence of an event kind. *ephem.Observer
// implements it.
type Forecaster interface {
	Next(target ephem.Target, kind event.Kind, start time.Time) (time.Time, float64, error)
}

// Lookup resolves body names. *registry.Registry implements it.
type Lookup interface {
	Select(names []string) (found []ephem.Target, missing []string)
}

// Config controls what is tracked and how the consumer waits.
type Config struct {
	Bodies []string     // names to track, resolved through Lookup
	Kinds  []event.Kind // filtered per body with ephem.KindsFor
	// MaxSleep bounds each wait so the clock is re-read regularly.
	MaxSleep time.Duration
	// RescheduleOffset is added to a fired event's date before searching for
	// the next occurrence, so the search cannot find the same event again.
	RescheduleOffset time.Duration
	Workers          int // seeding concurrency; defaults to NumCPU
}

// stats receives the counters the scheduler keeps while feeding its queue.
type stats interface {
	dropped(reason string)
	queueDepth(n int)
}

type liveStats struct{}

func (liveStats) dropped(reason string) { metrics.IncEventsDropped(reason) }
func (liveStats) queueDepth(n int)      { metrics.SetQueueDepth(n) }

// discardStats keeps previews out of the live metrics.
type discardStats struct{}

func (discardStats) dropped(string) {}
func (discardStats) queueDepth(int) {}

// Scheduler owns the queue and the goroutines that feed and drain it.
type Scheduler struct {
	queue      *Queue
	forecaster Forecaster
	lookup     Lookup
	notifier   notify.Notifier
	config     Config
	logger     *slog.Logger
	now        func() time.Time
	stats      stats

	fired  chan event.Event
	resync chan struct{}
	seeded atomic.Bool

	mu      sync.Mutex
	tracked map[string]ephem.Target
}

// New creates a scheduler. Call Run to start it.
func New(f Forecaster, lookup Lookup, n notify.Notifier, config Config, logger *slog.Logger) *Scheduler {
	if config.MaxSleep <= 0 {
		config.MaxSleep = DefaultMaxSleep
	}
	if config.RescheduleOffset <= 0 {
		config.RescheduleOffset = DefaultRescheduleOffset
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if len(config.Kinds) == 0 {
		config.Kinds = append(event.StandardKinds(), event.PassKinds()...)
	}
	return &Scheduler{
		queue:      NewQueue(),
		forecaster: f,
		lookup:     lookup,
		notifier:   n,
		config:     config,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
		stats:      liveStats{},
		fired:      make(chan event.Event, 64),
		resync:     make(chan struct{}, 1),
		tracked:    make(map[string]ephem.Target),
	}
}

// Queue exposes the pending events for read-only views.
func (s *Scheduler) Queue() *Queue {
	return s.queue
}

// Seeded reports whether the initial events have been computed.
func (s *Scheduler) Seeded() bool {
	return s.seeded.Load()
}

// Run seeds the queue and then fires and reschedules events until ctx is
// cancelled. Pending events are dropped on return.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Resync requests made before or during the initial seed are served
	// after it, so Seeded only turns true once every tracked body is seeded.
	g.Go(func() error {
		targets := s.refreshTracked()
		s.seed(ctx, targets, s.now())
		s.seeded.Store(true)
		s.logger.Info("queue seeded", "bodies", len(targets), "events", s.queue.Len())
		return s.resyncLoop(ctx)
	})
	g.Go(func() error { return s.consume(ctx) })
	g.Go(func() error { return s.rescheduleLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Resync asks the scheduler to re-resolve its tracked bodies after a catalog
// change: events of bodies that disappeared are dropped and new bodies are
// seeded. It never blocks; requests made while one is pending coalesce.
func (s *Scheduler) Resync(group string) {
	select {
	case s.resync <- struct{}{}:
		s.logger.Debug("resync requested", "group", group)
	default:
	}
}

// refreshTracked re-resolves the configured names and returns the targets
// that were not tracked before.
func (s *Scheduler) refreshTracked() []ephem.Target {
	found, missing := s.lookup.Select(s.config.Bodies)
	if len(missing) > 0 {
		s.logger.Warn("configured bodies not in registry", "missing", missing)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]ephem.Target, len(found))
	var added []ephem.Target
	for _, t := range found {
		next[t.Name()] = t
		if _, ok := s.tracked[t.Name()]; !ok {
			added = append(added, t)
		}
	}
	for name := range s.tracked {
		if _, ok := next[name]; !ok {
			n := s.queue.RemoveBody(name)
			s.logger.Info("body no longer tracked", "body", name, "events_removed", n)
		}
	}
	s.tracked = next
	return added
}

func (s *Scheduler) target(name string) (ephem.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracked[name]
	return t, ok
}

func (s *Scheduler) resyncLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.resync:
			added := s.refreshTracked()
			if len(added) > 0 {
				s.seed(ctx, added, s.now())
				s.logger.Info("resync seeded new bodies", "bodies", len(added))
			}
			s.stats.queueDepth(s.queue.Len())
		}
	}
}

type seedJob struct {
	target ephem.Target
	kind   event.Kind
}

// seed computes the first event after start for every applicable kind of
// every target on a bounded worker pool and queues the results.
func (s *Scheduler) seed(ctx context.Context, targets []ephem.Target, start time.Time) {
	var jobs []seedJob
	for _, t := range targets {
		for _, k := range ephem.KindsFor(t, s.config.Kinds) {
			if s.queue.Has(event.Key(t.Name(), k)) {
				continue
			}
			jobs = append(jobs, seedJob{target: t, kind: k})
		}
	}

	results := make(chan event.Event, s.config.Workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)

	go func() {
		for _, j := range jobs {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ev, ok := s.compute(j.target, j.kind, start)
				if !ok {
					return nil
				}
				select {
				case results <- ev:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		g.Wait()
		close(results)
	}()

	for ev := range results {
		s.enqueue(ev)
	}
}

// compute finds the next event of kind for t after start. Failures are
// logged and counted; the pair is then simply not queued.
func (s *Scheduler) compute(t ephem.Target, kind event.Kind, start time.Time) (event.Event, bool) {
	date, azalt, err := s.forecaster.Next(t, kind, start)
	if err != nil {
		switch {
		case errors.Is(err, ephem.ErrCircumpolar):
			s.stats.dropped("circumpolar")
			s.logger.Info("no such event", "body", t.Name(), "kind", kind, "reason", err.Error())
		case errors.Is(err, ephem.ErrNoPass):
			s.stats.dropped("no_pass")
			s.logger.Info("no such event", "body", t.Name(), "kind", kind, "reason", err.Error())
		case errors.Is(err, ephem.ErrUnsupportedKind):
			s.logger.Debug("kind does not apply", "body", t.Name(), "kind", kind)
		default:
			s.stats.dropped("compute_error")
			s.logger.Warn("event computation failed", "body", t.Name(), "kind", kind, "error", err)
		}
		return event.Event{}, false
	}
	return event.New(t.Name(), kind, date, azalt), true
}

func (s *Scheduler) enqueue(ev event.Event) bool {
	if err := s.queue.Push(ev); err != nil {
		s.stats.dropped("duplicate")
		s.logger.Debug("event not queued", "event", ev.Key(), "error", err)
		return false
	}
	s.stats.queueDepth(s.queue.Len())
	s.logger.Debug("event queued", "body", ev.Body, "kind", ev.Kind, "date", ev.Date.UTC().Format(time.RFC3339))
	return true
}

// consume fires events in date order. Each event is checked out of the queue
// before the wait, so it is delivered at most once.
func (s *Scheduler) consume(ctx context.Context) error {
	for {
		ev, err := s.queue.Pop(ctx)
		if err != nil {
			return err
		}

		due, err := s.waitUntilDue(ctx, ev)
		if err != nil {
			s.queue.Done(ev)
			return err
		}
		if !due {
			continue
		}

		if !s.queue.Held(ev) {
			// body dropped by a resync while we waited
			continue
		}
		s.queue.Done(ev)
		s.emit(ctx, ev)

		select {
		case s.fired <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitUntilDue sleeps in steps of at most MaxSleep, re-reading the clock each
// time, until ev's date. If an earlier event is queued meanwhile, ev goes
// back into the queue and waitUntilDue reports false.
func (s *Scheduler) waitUntilDue(ctx context.Context, ev event.Event) (bool, error) {
	for {
		changed := s.queue.Changed()
		now := s.now()
		if !now.Before(ev.Date) {
			return true, nil
		}
		if !s.queue.Held(ev) {
			return false, nil
		}
		if next, ok := s.queue.Peek(); ok && next.Date.Before(ev.Date) {
			s.queue.Requeue(ev)
			s.logger.Debug("earlier event arrived, swapping", "held", ev.Key(), "next", next.Key())
			return false, nil
		}

		wait := ev.Date.Sub(now)
		if wait > s.config.MaxSleep {
			wait = s.config.MaxSleep
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) emit(ctx context.Context, ev event.Event) {
	late := s.now().Sub(ev.Date)
	metrics.IncEventsFired(string(ev.Kind))
	metrics.ObserveFireLateness(late)
	s.stats.queueDepth(s.queue.Len())
	s.logger.Info("event fired",
		"body", ev.Body,
		"kind", ev.Kind,
		"date", ev.Date.UTC().Format(time.RFC3339),
		"azalt", ev.AzAlt,
		"late_ms", late.Milliseconds(),
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, ev)
	}
}

func (s *Scheduler) rescheduleLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.fired:
			s.reschedule(ev)
		}
	}
}

// reschedule queues the occurrence of ev's (body, kind) that follows ev.
func (s *Scheduler) reschedule(fired event.Event) {
	t, ok := s.target(fired.Body)
	if !ok {
		s.logger.Debug("not rescheduling untracked body", "body", fired.Body)
		return
	}

	next, ok := s.compute(t, fired.Kind, fired.Date.Add(s.config.RescheduleOffset))
	if !ok {
		return
	}
	if !next.Date.After(fired.Date) {
		s.stats.dropped("not_later")
		s.logger.Warn("next occurrence not after fired event, dropping",
			"body", fired.Body,
			"kind", fired.Kind,
			"fired", fired.Date.UTC().Format(time.RFC3339),
			"next", next.Date.UTC().Format(time.RFC3339),
		)
		return
	}
	if s.enqueue(next) {
		metrics.IncEventsRescheduled(string(fired.Kind))
	}
}

// Preview computes the next n events after start without firing anything,
// by repeatedly taking the earliest event and queueing its successor on a
// private queue.
func (s *Scheduler) Preview(ctx context.Context, start time.Time, n int) ([]event.Event, error) {
	found, missing := s.lookup.Select(s.config.Bodies)
	if len(missing) > 0 {
		s.logger.Warn("configured bodies not in registry", "missing", missing)
	}
	byName := make(map[string]ephem.Target, len(found))
	for _, t := range found {
		byName[t.Name()] = t
	}

	preview := &Scheduler{
		queue:      NewQueue(),
		forecaster: s.forecaster,
		config:     s.config,
		logger:     s.logger,
		now:        s.now,
		stats:      discardStats{},
	}
	preview.seed(ctx, found, start)

	out := make([]event.Event, 0, n)
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if preview.queue.Len() == 0 {
			break
		}
		ev, err := preview.queue.Pop(ctx)
		if err != nil {
			return out, err
		}
		preview.queue.Done(ev)
		out = append(out, ev)

		next, ok := preview.compute(byName[ev.Body], ev.Kind, ev.Date.Add(s.config.RescheduleOffset))
		if ok && next.Date.After(ev.Date) {
			preview.queue.Push(next)
		}
	}
	return out, nil
}

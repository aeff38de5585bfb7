// Package notify delivers fired events to whoever is watching: the console,
// SSE clients and the terminal UI.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/star/skywatch/internal/event"
)

// Notifier receives every fired event. Implementations must not block for long;
// the scheduler calls them inline.
type Notifier interface {
	Notify(ctx context.Context, e event.Event)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, e event.Event)

func (f Func) Notify(ctx context.Context, e event.Event) { f(ctx, e) }

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e event.Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// Printer writes one line per event:
//
//	EVENT: 2026-03-20 07:36:12 EDT Sun rise 89°
type Printer struct {
	mu  sync.Mutex
	w   io.Writer
	loc *time.Location
}

// NewPrinter prints event times in loc; nil means the local zone.
func NewPrinter(w io.Writer, loc *time.Location) *Printer {
	if loc == nil {
		loc = time.Local
	}
	return &Printer{w: w, loc: loc}
}

func (p *Printer) Notify(_ context.Context, e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "EVENT: %s %s %s %.0f°\n",
		e.Date.In(p.loc).Format("2006-01-02 15:04:05 MST"), e.Body, e.Kind, e.AzAlt)
}

package schedule

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/star/skywatch/internal/event"
)

// ErrDuplicateEvent means the queue already holds an event for the same
// (body, kind) pair.
var ErrDuplicateEvent = errors.New("event already pending for body and kind")

// Queue is a date-ordered event queue with at most one pending event per
// (body, kind). Popping checks an event out: its key stays reserved until the
// consumer calls Done or Requeue, so nothing else can enqueue the same pair
// while the event waits to fire.
type Queue struct {
	mu      sync.Mutex
	h       eventHeap
	pending map[string]*item
	out     map[string]event.Event
	changed chan struct{}
}

type item struct {
	ev    event.Event
	index int
}

type eventHeap []*item

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].ev.Date.Before(h[j].ev.Date) }
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		pending: make(map[string]*item),
		out:     make(map[string]event.Event),
		changed: make(chan struct{}),
	}
}

// Push adds e. It fails with ErrDuplicateEvent if e's key is queued or checked out.
func (q *Queue) Push(e event.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := e.Key()
	if _, ok := q.pending[key]; ok {
		return ErrDuplicateEvent
	}
	if _, ok := q.out[key]; ok {
		return ErrDuplicateEvent
	}
	q.pushLocked(e)
	return nil
}

func (q *Queue) pushLocked(e event.Event) {
	it := &item{ev: e}
	heap.Push(&q.h, it)
	q.pending[e.Key()] = it
	q.signalLocked()
}

// signalLocked wakes everyone waiting on Changed.
func (q *Queue) signalLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Changed returns a channel that is closed the next time an event is pushed.
func (q *Queue) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

// Pop blocks until an event is available or ctx is done, then checks out the
// earliest event.
func (q *Queue) Pop(ctx context.Context) (event.Event, error) {
	for {
		q.mu.Lock()
		if q.h.Len() > 0 {
			it := heap.Pop(&q.h).(*item)
			delete(q.pending, it.ev.Key())
			q.out[it.ev.Key()] = it.ev
			q.mu.Unlock()
			return it.ev, nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		case <-changed:
		}
	}
}

// Done releases a checked-out event's key.
func (q *Queue) Done(e event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if out, ok := q.out[e.Key()]; ok && out.ID == e.ID {
		delete(q.out, e.Key())
	}
}

// Requeue puts a checked-out event back into the queue. It reports false if
// the event was discarded meanwhile (see RemoveBody).
func (q *Queue) Requeue(e event.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	out, ok := q.out[e.Key()]
	if !ok || out.ID != e.ID {
		return false
	}
	delete(q.out, e.Key())
	q.pushLocked(e)
	return true
}

// Held reports whether e is still checked out, i.e. not discarded by RemoveBody.
func (q *Queue) Held(e event.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	out, ok := q.out[e.Key()]
	return ok && out.ID == e.ID
}

// Peek returns the earliest queued event without removing it.
func (q *Queue) Peek() (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return event.Event{}, false
	}
	return q.h[0].ev, true
}

// Has reports whether key is queued or checked out.
func (q *Queue) Has(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, queued := q.pending[key]
	_, out := q.out[key]
	return queued || out
}

// RemoveBody drops every queued and checked-out event of body and returns
// how many were dropped.
func (q *Queue) RemoveBody(body string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for key, it := range q.pending {
		if it.ev.Body == body {
			heap.Remove(&q.h, it.index)
			delete(q.pending, key)
			n++
		}
	}
	for key, ev := range q.out {
		if ev.Body == body {
			delete(q.out, key)
			n++
		}
	}
	return n
}

// Len counts queued and checked-out events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len() + len(q.out)
}

// Snapshot returns every pending event, checked-out ones included, sorted by date.
func (q *Queue) Snapshot() []event.Event {
	q.mu.Lock()
	out := make([]event.Event, 0, q.h.Len()+len(q.out))
	for _, it := range q.h {
		out = append(out, it.ev)
	}
	for _, ev := range q.out {
		out = append(out, ev)
	}
	q.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

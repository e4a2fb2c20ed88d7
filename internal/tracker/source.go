package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/settle/internal/event"
)

// Source is a totally ordered stream of domain events.
type Source interface {
	// Next returns the next event. It returns ErrPollTimeout when nothing
	// arrived within timeout, ErrSourceClosed once the stream has ended,
	// or ctx.Err().
	Next(ctx context.Context, timeout time.Duration) (event.Event, error)
}

// Queue is an unbounded in-memory FIFO Source. Enqueue is safe from any
// goroutine; events are stamped with a sequence number from the queue's
// Clock in the order they are accepted.
type Queue struct {
	mu     sync.Mutex
	events []event.Event
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
	clock  *Clock
}

// NewQueue creates an empty queue stamping from a fresh clock.
func NewQueue() *Queue {
	return NewQueueWithClock(NewClock())
}

// NewQueueWithClock creates an empty queue stamping from clock.
func NewQueueWithClock(clock *Clock) *Queue {
	return &Queue{
		events: make([]event.Event, 0, 64),
		signal: make(chan struct{}, 1),
		clock:  clock,
	}
}

// Enqueue appends ev and returns the sequence number it was stamped with.
// It returns false if the queue is closed.
func (q *Queue) Enqueue(ev event.Event) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, false
	}

	ev.Seq = q.clock.Next()
	q.events = append(q.events, ev)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return ev.Seq, true
}

// Next implements Source.
func (q *Queue) Next(ctx context.Context, timeout time.Duration) (event.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		ev, ok, closed := q.pop()
		if ok {
			return ev, nil
		}
		if closed {
			return event.Event{}, ErrSourceClosed
		}

		select {
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		case <-timer.C:
			return event.Event{}, ErrPollTimeout
		case <-q.signal:
		}
	}
}

func (q *Queue) pop() (ev event.Event, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event.Event{}, false, q.closed
	}

	ev = q.events[0]
	// Clear the slot so the backing array does not pin the event's Call.
	q.events[0] = event.Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true, false
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close ends the stream. Queued events are still returned; after that Next
// reports ErrSourceClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// ChanSource adapts a channel to a Source. Events keep the Seq their
// producer assigned. A closed channel reports ErrSourceClosed.
type ChanSource <-chan event.Event

// Next implements Source.
func (c ChanSource) Next(ctx context.Context, timeout time.Duration) (event.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-c:
		if !ok {
			return event.Event{}, ErrSourceClosed
		}
		return ev, nil
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	case <-timer.C:
		return event.Event{}, ErrPollTimeout
	}
}

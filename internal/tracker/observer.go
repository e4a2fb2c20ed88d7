package tracker

import "github.com/roach88/settle/internal/event"

// Outcome describes one fired ConditionSet.
type Outcome struct {
	Invocation   event.InvocationID
	Registration string
	Result       Result
	// Seq is the event that settled the invocation, or the last seen
	// event for a forced completion.
	Seq int64
	// Err is ErrConsumerGone if nobody received the result.
	Err error
}

// Observer is notified of tracker activity from the tracker's goroutine.
// Implementations must not block and must not call back into the Tracker.
type Observer interface {
	// Observed is called for every event before it is processed.
	Observed(ev event.Event)
	// Tracked is called when a registration is attached to an invocation.
	Tracked(id event.InvocationID, registration string, seq int64)
	// Settled is called after a ConditionSet fired.
	Settled(o Outcome)
}

type nopObserver struct{}

func (nopObserver) Observed(event.Event) {}

func (nopObserver) Tracked(event.InvocationID, string, int64) {}

func (nopObserver) Settled(Outcome) {}

// Observers fans out to several observers in order.
type Observers []Observer

func (obs Observers) Observed(ev event.Event) {
	for _, o := range obs {
		o.Observed(ev)
	}
}

func (obs Observers) Tracked(id event.InvocationID, registration string, seq int64) {
	for _, o := range obs {
		o.Tracked(id, registration, seq)
	}
}

func (obs Observers) Settled(out Outcome) {
	for _, o := range obs {
		o.Settled(out)
	}
}

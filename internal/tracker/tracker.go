package tracker

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/settle/internal/event"
)

const instrumentationName = "github.com/roach88/settle/internal/tracker"

// Tracker maps invocations to their ConditionSets and attributes ambiguous
// events to the current invocation.
//
// A Tracker is not safe for concurrent use. All methods must be called from
// the goroutine that owns it, normally Runner.Run.
type Tracker struct {
	sets  map[event.InvocationID]*ConditionSet
	order []event.InvocationID // insertion order, for deterministic evaluation

	current    event.InvocationID
	hasCurrent bool
	lastSeq    int64

	intake   Registrations
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithObserver installs an observer. Default: none.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		t.observer = o
	}
}

// WithTracerProvider sets the provider for per-invocation spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Tracker) {
		t.tracer = tp.Tracer(instrumentationName)
	}
}

// New creates a Tracker that takes registrations from intake.
func New(intake Registrations, opts ...Option) *Tracker {
	t := &Tracker{
		sets:     make(map[event.InvocationID]*ConditionSet),
		intake:   intake,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return t
}

// ProcessEvent applies one event: attribution first, then evaluation of
// every live ConditionSet. Deliveries block until each consumer receives
// its result or closes its handle.
func (t *Tracker) ProcessEvent(ctx context.Context, ev event.Event) {
	t.lastSeq = ev.Seq
	t.observer.Observed(ev)

	t.attribute(ctx, ev)
	t.evaluate(ev)
}

func (t *Tracker) attribute(ctx context.Context, ev event.Event) {
	switch ev.Kind {
	case event.KindInvocationStarted:
		t.start(ctx, ev)

	case event.KindRecordWritten:
		if set, ok := t.currentSet(); ok {
			set.Add(DurabilityOf(ev.Record))
		}

	case event.KindPeerMessageSent:
		if !ev.MessageKind.RequiresRoundTrip() {
			return
		}
		if set, ok := t.currentSet(); ok {
			set.Add(OutcomeOf(ev.MsgID))
		}
	}
}

func (t *Tracker) start(ctx context.Context, ev event.Event) {
	reg, ok := t.intake.TryReceive()
	if !ok {
		if t.hasCurrent {
			slog.Debug("untracked invocation started, clearing attribution target",
				"invocation_id", ev.Invocation.Short(),
				"previous", t.current.Short(),
				"seq", ev.Seq,
			)
		}
		t.clearCurrent()
		return
	}

	if _, exists := t.sets[ev.Invocation]; exists {
		slog.Warn("registration for invocation already tracked",
			"invocation_id", ev.Invocation.Short(),
			"registration_id", reg.ID(),
			"seq", ev.Seq,
		)
		reg.fail(ErrDuplicateInvocation)
		t.current, t.hasCurrent = ev.Invocation, true
		return
	}

	_, span := t.tracer.Start(ctx, "settle.invocation", trace.WithAttributes(
		attribute.String("settle.invocation_id", string(ev.Invocation)),
		attribute.String("settle.registration_id", reg.ID()),
		attribute.Int64("settle.start_seq", ev.Seq),
	))

	set := newConditionSet(ev.Invocation, reg, span)
	t.sets[ev.Invocation] = set
	t.order = append(t.order, ev.Invocation)
	t.current, t.hasCurrent = ev.Invocation, true

	slog.Debug("tracking invocation",
		"invocation_id", ev.Invocation.Short(),
		"registration_id", reg.ID(),
		"seq", ev.Seq,
	)
	t.observer.Tracked(ev.Invocation, reg.ID(), ev.Seq)

	set.Add(ReturnOf(ev.Invocation))
}

func (t *Tracker) evaluate(ev event.Event) {
	var finished []event.InvocationID
	for _, id := range t.order {
		set := t.sets[id]
		if set.Evaluate(ev) == Finished {
			finished = append(finished, id)
			t.settled(set, ev.Seq)
		}
	}
	if len(finished) == 0 {
		return
	}

	for _, id := range finished {
		delete(t.sets, id)
	}
	t.order = slices.DeleteFunc(t.order, func(id event.InvocationID) bool {
		_, live := t.sets[id]
		return !live
	})
	if _, live := t.sets[t.current]; t.hasCurrent && !live {
		t.clearCurrent()
	}
}

func (t *Tracker) settled(set *ConditionSet, seq int64) {
	slog.Debug("invocation settled",
		"invocation_id", set.invocation.Short(),
		"registration_id", set.reg.ID(),
		"result", set.result.String(),
		"seq", seq,
	)
	t.observer.Settled(Outcome{
		Invocation:   set.invocation,
		Registration: set.reg.ID(),
		Result:       set.result,
		Seq:          seq,
		Err:          set.err,
	})
}

// Shutdown forces every remaining ConditionSet, delivering
// ForcedCompletion to its consumer, and leaves the tracker empty.
func (t *Tracker) Shutdown(ctx context.Context) {
	if len(t.order) > 0 {
		slog.InfoContext(ctx, "forcing outstanding invocations", "count", len(t.order))
	}
	for _, id := range t.order {
		set := t.sets[id]
		set.Shutdown()
		t.settled(set, t.lastSeq)
	}
	clear(t.sets)
	t.order = t.order[:0]
	t.clearCurrent()
}

// Len returns the number of invocations being tracked.
func (t *Tracker) Len() int {
	return len(t.sets)
}

// Tracking returns the unsatisfied conditions of invocation id, or false if
// it is not tracked.
func (t *Tracker) Tracking(id event.InvocationID) ([]Condition, bool) {
	set, ok := t.sets[id]
	if !ok {
		return nil, false
	}
	return set.Conditions(), true
}

// Current returns the attribution target, if any.
func (t *Tracker) Current() (event.InvocationID, bool) {
	return t.current, t.hasCurrent
}

func (t *Tracker) currentSet() (*ConditionSet, bool) {
	if !t.hasCurrent {
		return nil, false
	}
	set, ok := t.sets[t.current]
	return set, ok
}

func (t *Tracker) clearCurrent() {
	t.current, t.hasCurrent = "", false
}

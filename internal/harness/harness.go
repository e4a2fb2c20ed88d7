package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/settle/internal/event"
	"github.com/roach88/settle/internal/tracker"
)

// Harness executes one scenario. It owns a fresh tracker fed from the
// calling goroutine, a staged intake and one consumer per registration.
type Harness struct {
	calls   map[string]event.Call
	labels  map[event.InvocationID]string
	tracker *tracker.Tracker
	staged  *tracker.Staged
	clock   *tracker.Clock

	consumers map[string]*consumer
	wg        sync.WaitGroup

	result *Result
}

// consumer waits on one handle in the background.
type consumer struct {
	handle *tracker.Handle
	res    tracker.Result
	err    error
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Build a tracker with a staged intake
// 2. Execute each step, checking its expectations afterwards
// 3. Shut the tracker down, forcing whatever is still outstanding
// 4. Wait for every consumer and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	calls, err := buildCalls(scenario.Invocations)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		calls:     calls,
		labels:    labelIndex(calls),
		staged:    tracker.NewStaged(),
		clock:     tracker.NewClock(),
		consumers: make(map[string]*consumer),
		result:    NewResult(),
	}
	h.tracker = tracker.New(h.staged, tracker.WithObserver(h))

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			h.tracker.Shutdown(ctx)
			h.staged.Stop()
			h.wg.Wait()
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Expect != nil {
			h.check(i, step.Expect)
		}
	}

	h.tracker.Shutdown(ctx)
	h.staged.Stop()
	h.wg.Wait()

	for label, c := range h.consumers {
		if c.err != nil {
			h.result.Consumers[label] = c.err.Error()
			continue
		}
		h.result.Consumers[label] = c.res.String()
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch {
	case step.Register != "":
		return h.register(step.Register)
	case step.Shutdown:
		h.tracker.Shutdown(ctx)
		return nil
	default:
		ev, err := h.buildEvent(step)
		if err != nil {
			return err
		}
		ev.Seq = h.clock.Next()
		h.tracker.ProcessEvent(ctx, ev)
		return nil
	}
}

func (h *Harness) register(label string) error {
	reg, handle := tracker.NewRegistration()
	if err := h.staged.Stage(reg); err != nil {
		return fmt.Errorf("stage %s: %w", label, err)
	}

	c := &consumer{handle: handle}
	h.consumers[label] = c
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.res, c.err = handle.Wait(context.Background())
	}()
	return nil
}

func (h *Harness) buildEvent(step Step) (event.Event, error) {
	switch kind := event.Kind(step.Event); kind {
	case event.KindInvocationStarted, event.KindInvocationReturned:
		call, ok := h.calls[step.Invocation]
		if !ok {
			return event.Event{}, fmt.Errorf("unknown invocation %q", step.Invocation)
		}
		if kind == event.KindInvocationStarted {
			return event.Started(call), nil
		}
		return event.Returned(call), nil
	case event.KindRecordWritten, event.KindRecordDurable:
		if step.Record == nil {
			return event.Event{}, fmt.Errorf("%s needs a record", kind)
		}
		rec := event.Record{Type: step.Record.Type, Content: step.Record.Content}
		if kind == event.KindRecordWritten {
			return event.Written(rec), nil
		}
		return event.Durable(rec), nil
	case event.KindPeerMessageSent:
		return event.Sent(step.MsgID, event.MessageKind(step.MessageKind)), nil
	case event.KindPeerMessageResolved:
		return event.Resolved(step.MsgID), nil
	case event.KindPeerMessageTimedOut:
		return event.TimedOut(step.MsgID), nil
	default:
		return event.Event{Kind: kind}, nil
	}
}

// check compares tracker state against an expectation. Consumer state is
// read with Peek: deliveries finish before ProcessEvent returns.
func (h *Harness) check(index int, e *Expect) {
	if e.Completed != nil {
		h.compare(index, "completed", e.Completed, h.consumersWith(tracker.Completed))
	}
	if e.Forced != nil {
		h.compare(index, "forced", e.Forced, h.consumersWith(tracker.ForcedCompletion))
	}
	if e.Pending != nil {
		var pending []string
		for label, call := range h.calls {
			if _, ok := h.tracker.Tracking(call.MustID()); ok {
				pending = append(pending, label)
			}
		}
		h.compare(index, "pending", e.Pending, pending)
	}
	if e.Current != "" {
		got := CurrentNone
		if id, ok := h.tracker.Current(); ok {
			got = h.label(id)
		}
		if got != e.Current {
			h.result.AddError(fmt.Sprintf("steps[%d]: current: expected %s, got %s", index, e.Current, got))
		}
	}
}

func (h *Harness) compare(index int, what string, expected, actual []string) {
	expected = slices.Sorted(slices.Values(expected))
	actual = slices.Sorted(slices.Values(actual))
	if !slices.Equal(expected, actual) {
		h.result.AddError(fmt.Sprintf("steps[%d]: %s: expected %v, got %v", index, what, expected, actual))
	}
}

func (h *Harness) consumersWith(res tracker.Result) []string {
	var labels []string
	for label, c := range h.consumers {
		if got, ok := c.handle.Peek(); ok && got == res {
			labels = append(labels, label)
		}
	}
	return labels
}

func (h *Harness) label(id event.InvocationID) string {
	if label, ok := h.labels[id]; ok {
		return label
	}
	return id.Short()
}

// Observed implements tracker.Observer.
func (h *Harness) Observed(ev event.Event) {
	entry := TraceEntry{Type: TraceEvent, Kind: string(ev.Kind), Seq: ev.Seq}
	switch ev.Kind {
	case event.KindInvocationStarted, event.KindInvocationReturned:
		entry.Label = h.label(ev.Invocation)
	case event.KindRecordWritten, event.KindRecordDurable:
		entry.Label = ev.Record.String()
	case event.KindPeerMessageSent, event.KindPeerMessageResolved, event.KindPeerMessageTimedOut:
		entry.Label = ev.MsgID
	}
	h.result.Trace = append(h.result.Trace, entry)
}

// Tracked implements tracker.Observer.
func (h *Harness) Tracked(id event.InvocationID, _ string, seq int64) {
	h.result.Trace = append(h.result.Trace, TraceEntry{Type: TraceTracked, Label: h.label(id), Seq: seq})
}

// Settled implements tracker.Observer.
func (h *Harness) Settled(o tracker.Outcome) {
	h.result.Trace = append(h.result.Trace, TraceEntry{
		Type:   TraceSettled,
		Label:  h.label(o.Invocation),
		Result: o.Result.String(),
		Seq:    o.Seq,
	})
}

// labelIndex maps invocation ids back to labels. Labels that share a call
// resolve to the alphabetically first one.
func labelIndex(calls map[string]event.Call) map[event.InvocationID]string {
	index := make(map[event.InvocationID]string, len(calls))
	for _, label := range slices.Sorted(maps.Keys(calls)) {
		id := calls[label].MustID()
		if _, ok := index[id]; !ok {
			index[id] = label
		}
	}
	return index
}

package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/settle/internal/event"
)

// Status is the result of evaluating an event against a ConditionSet.
type Status int

const (
	// Pending means conditions remain.
	Pending Status = iota
	// Finished means the set emptied and its consumer was notified.
	Finished
)

// ConditionSet holds the pending conditions of one invocation and the
// registration its consumer waits on. It fires exactly once, either when
// the last condition is satisfied or when it is shut down.
type ConditionSet struct {
	invocation event.InvocationID
	conditions []Condition
	reg        *Registration
	span       trace.Span

	result Result
	err    error
}

func newConditionSet(id event.InvocationID, reg *Registration, span trace.Span) *ConditionSet {
	if span == nil {
		span = trace.SpanFromContext(context.Background())
	}
	return &ConditionSet{invocation: id, reg: reg, span: span}
}

// Add appends a condition. Duplicates are kept, and a single matching
// event satisfies all of them.
func (s *ConditionSet) Add(c Condition) {
	before := len(s.conditions)
	s.conditions = append(s.conditions, c)

	s.span.AddEvent("condition.added", trace.WithAttributes(
		attribute.String("settle.condition", c.String()),
	))
	slog.Debug("condition added",
		"invocation_id", s.invocation.Short(),
		"condition", c.String(),
		"conditions", fmt.Sprintf("%d -> %d", before, len(s.conditions)),
	)
}

// Evaluate removes every condition ev satisfies. When that empties the set
// the consumer is notified with Completed and Finished is returned.
func (s *ConditionSet) Evaluate(ev event.Event) Status {
	before := len(s.conditions)
	s.conditions = slices.DeleteFunc(s.conditions, func(c Condition) bool {
		return c.SatisfiedBy(ev)
	})

	if after := len(s.conditions); after != before {
		slog.Debug("conditions satisfied",
			"invocation_id", s.invocation.Short(),
			"event", ev.String(),
			"conditions", fmt.Sprintf("%d -> %d", before, after),
		)
	}
	if len(s.conditions) > 0 {
		return Pending
	}
	if before > 0 {
		s.fire(Completed)
	}
	return Finished
}

// Shutdown drops all remaining conditions and notifies the consumer with
// ForcedCompletion.
func (s *ConditionSet) Shutdown() {
	pending := len(s.conditions)
	s.conditions = nil
	s.span.SetAttributes(attribute.Int("settle.pending_conditions", pending))
	s.fire(ForcedCompletion)
}

// Len returns the number of unsatisfied conditions.
func (s *ConditionSet) Len() int {
	return len(s.conditions)
}

// Conditions returns a copy of the unsatisfied conditions in insertion order.
func (s *ConditionSet) Conditions() []Condition {
	return slices.Clone(s.conditions)
}

func (s *ConditionSet) fire(res Result) {
	s.result = res
	s.err = s.reg.deliver(res)

	s.span.SetAttributes(attribute.String("settle.result", res.String()))
	if s.err != nil {
		s.span.RecordError(s.err)
		s.span.SetStatus(codes.Error, s.err.Error())
		if errors.Is(s.err, ErrConsumerGone) {
			slog.Warn("completion not delivered",
				"invocation_id", s.invocation.Short(),
				"registration_id", s.reg.ID(),
				"result", res.String(),
				"error", s.err,
			)
		}
	}
	s.span.End()
}

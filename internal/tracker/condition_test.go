package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/settle/internal/event"
)

func TestCondition_SatisfiedBy(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		ev   event.Event
		want bool
	}{
		{"return matches", ReturnOf(idA), event.Returned(callA), true},
		{"return of other invocation", ReturnOf(idA), event.Returned(callB), false},
		{"start is not a return", ReturnOf(idA), event.Started(callA), false},
		{"durable matches", DurabilityOf(rec("x")), event.Durable(rec("x")), true},
		{"durable other record", DurabilityOf(rec("x")), event.Durable(rec("y")), false},
		{"write is not durable", DurabilityOf(rec("x")), event.Written(rec("x")), false},
		{"peer resolved", OutcomeOf("m1"), event.Resolved("m1"), true},
		{"peer timed out", OutcomeOf("m1"), event.TimedOut("m1"), true},
		{"peer other message", OutcomeOf("m1"), event.Resolved("m2"), false},
		{"peer sent is not an outcome", OutcomeOf("m1"), event.Sent("m1", event.MessageCustom), false},
		{"unknown event", ReturnOf(idA), event.Event{Kind: "other"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.SatisfiedBy(tt.ev))
		})
	}
}

func TestCondition_String(t *testing.T) {
	assert.Equal(t, "await_durable(entry/x)", DurabilityOf(rec("x")).String())
	assert.Equal(t, "await_peer_outcome(m1)", OutcomeOf("m1").String())
	assert.Equal(t, "await_return("+idA.Short()+")", ReturnOf(idA).String())
}

func TestConditionSet_EvaluateRemovesAllSatisfied(t *testing.T) {
	reg, h := NewRegistration()
	defer h.Close()
	set := newConditionSet(idA, reg, nil)

	set.Add(ReturnOf(idA))
	set.Add(DurabilityOf(rec("x")))
	set.Add(OutcomeOf("m1"))

	assert.Equal(t, Pending, set.Evaluate(event.Durable(rec("x"))))
	assert.Equal(t, []Condition{ReturnOf(idA), OutcomeOf("m1")}, set.Conditions())

	assert.Equal(t, Pending, set.Evaluate(event.Written(rec("z"))))
	assert.Equal(t, 2, set.Len())

	results := make(chan Result, 1)
	go func() {
		res, _ := h.Wait(context.Background())
		results <- res
	}()
	assert.Equal(t, Pending, set.Evaluate(event.TimedOut("m1")))
	assert.Equal(t, Finished, set.Evaluate(event.Returned(callA)))
	assert.Equal(t, Completed, <-results)
}

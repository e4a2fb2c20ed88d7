package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/settle/internal/tracker"
)

func started(label string) Step {
	return Step{Event: "invocation_started", Invocation: label}
}

func returned(label string) Step {
	return Step{Event: "invocation_returned", Invocation: label}
}

func written(content string) Step {
	return Step{Event: "record_written", Record: &RecordSpec{Type: "entry", Content: content}}
}

func durable(content string) Step {
	return Step{Event: "record_durable", Record: &RecordSpec{Type: "entry", Content: content}}
}

func twoInvocations() map[string]CallSpec {
	return map[string]CallSpec{
		"A": {Actor: "alice", Target: "blog.post", Params: map[string]any{"n": 1}},
		"B": {Actor: "alice", Target: "blog.post", Params: map[string]any{"n": 2}},
	}
}

func TestRun_SingleReturn(t *testing.T) {
	s := &Scenario{
		Name:        "single_return",
		Description: "an invocation with no side effects settles on return",
		Invocations: twoInvocations(),
		Steps: []Step{
			{Register: "A"},
			started("A"),
			returned("A"),
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, []TraceEntry{
		{Type: TraceEvent, Kind: "invocation_started", Label: "A", Seq: 1},
		{Type: TraceTracked, Label: "A", Seq: 1},
		{Type: TraceEvent, Kind: "invocation_returned", Label: "A", Seq: 2},
		{Type: TraceSettled, Label: "A", Result: "completed", Seq: 2},
	}, result.Trace)
	assert.Equal(t, map[string]string{"A": "completed"}, result.Consumers)
}

func TestRun_FailedExpectation(t *testing.T) {
	s := &Scenario{
		Name:        "premature",
		Description: "expects completion before the ack",
		Invocations: twoInvocations(),
		Steps: []Step{
			{Register: "A"},
			started("A"),
			written("a1"),
			func() Step {
				st := returned("A")
				st.Expect = &Expect{Completed: []string{"A"}, Current: CurrentNone}
				return st
			}(),
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"steps[3]: completed: expected [A], got []",
		"steps[3]: current: expected none, got A",
	}, result.Errors)

	// The final shutdown still releases the consumer.
	assert.Equal(t, "forced", result.Consumers["A"])
}

func TestRun_DuplicateRegistrationRejected(t *testing.T) {
	s := &Scenario{
		Name:        "duplicate",
		Description: "second registration for a tracked invocation",
		Invocations: twoInvocations(),
		Steps: []Step{
			{Register: "first"},
			started("A"),
			{Register: "second"},
			started("A"),
			returned("A"),
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, "completed", result.Consumers["first"])
	assert.Equal(t, tracker.ErrDuplicateInvocation.Error(), result.Consumers["second"])
}

func TestRun_UnusedRegistrationStopped(t *testing.T) {
	s := &Scenario{
		Name:        "unused",
		Description: "a registration no start event consumed",
		Invocations: twoInvocations(),
		Steps:       []Step{{Register: "idle"}, written("x")},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, tracker.ErrTrackerStopped.Error(), result.Consumers["idle"])
	assert.Empty(t, result.Settled())
}

func TestRun_ConcurrentInvocations(t *testing.T) {
	s := &Scenario{
		Name:        "interleaved",
		Description: "B's acks do not complete A",
		Invocations: twoInvocations(),
		Steps: []Step{
			{Register: "A"},
			started("A"),
			written("a1"),
			{Register: "B"},
			started("B"),
			written("b1"),
			returned("B"),
			returned("A"),
			func() Step {
				st := durable("b1")
				st.Expect = &Expect{Completed: []string{"B"}, Pending: []string{"A"}}
				return st
			}(),
			func() Step {
				st := durable("a1")
				st.Expect = &Expect{Completed: []string{"A", "B"}, Pending: []string{}}
				return st
			}(),
		},
		Assertions: []Assertion{
			{Type: AssertSettleOrder, Invocations: []string{"B", "A"}},
			{Type: AssertSettleCount, Count: 2},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnknownInvocation(t *testing.T) {
	s := &Scenario{
		Name:        "bad",
		Description: "unvalidated scenario",
		Invocations: twoInvocations(),
		Steps:       []Step{{Register: "A"}, started("Z")},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `steps[1]: unknown invocation "Z"`)
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("../../testdata/scenarios/literal_ab.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Consumers, second.Consumers)
}

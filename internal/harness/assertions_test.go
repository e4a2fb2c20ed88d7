package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTrace = []TraceEntry{
	{Type: TraceEvent, Kind: "invocation_started", Label: "A", Seq: 1},
	{Type: TraceTracked, Label: "A", Seq: 1},
	{Type: TraceEvent, Kind: "invocation_started", Label: "U", Seq: 2},
	{Type: TraceEvent, Kind: "invocation_started", Label: "B", Seq: 3},
	{Type: TraceTracked, Label: "B", Seq: 3},
	{Type: TraceEvent, Kind: "invocation_returned", Label: "B", Seq: 4},
	{Type: TraceSettled, Label: "B", Result: "completed", Seq: 4},
	{Type: TraceSettled, Label: "A", Result: "forced", Seq: 4},
}

func TestAssertSettled(t *testing.T) {
	assert.NoError(t, assertSettled(sampleTrace, Assertion{Invocation: "B", Result: "completed"}))
	assert.NoError(t, assertSettled(sampleTrace, Assertion{Invocation: "A", Result: "forced", Seq: 4}))

	err := assertSettled(sampleTrace, Assertion{Invocation: "A", Result: "completed"})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "forced at seq 4", aerr.Actual)

	err = assertSettled(sampleTrace, Assertion{Invocation: "B", Result: "completed", Seq: 9})
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "B completed at seq 9", aerr.Expected)

	err = assertSettled(sampleTrace, Assertion{Invocation: "U", Result: "completed"})
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "never settled", aerr.Actual)
}

func TestAssertSettleOrder(t *testing.T) {
	assert.NoError(t, assertSettleOrder(sampleTrace, Assertion{Invocations: []string{"B", "A"}}))
	assert.NoError(t, assertSettleOrder(sampleTrace, Assertion{Invocations: []string{"A"}}))

	err := assertSettleOrder(sampleTrace, Assertion{Invocations: []string{"A", "B"}})
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "A settles before B", aerr.Expected)

	err = assertSettleOrder(sampleTrace, Assertion{Invocations: []string{"B", "U"}})
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "U never settled", aerr.Actual)
}

func TestAssertSettleCount(t *testing.T) {
	assert.NoError(t, assertSettleCount(sampleTrace, Assertion{Count: 2}))
	assert.Error(t, assertSettleCount(sampleTrace, Assertion{Count: 1}))
	assert.NoError(t, assertSettleCount(nil, Assertion{Count: 0}))
}

func TestAssertUntracked(t *testing.T) {
	assert.NoError(t, assertUntracked(sampleTrace, Assertion{Invocation: "U"}))

	err := assertUntracked(sampleTrace, Assertion{Invocation: "B"})
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "tracked at seq 3", aerr.Actual)
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertSettleCount, Count: 2},
		{Type: AssertUntracked, Invocation: "A"},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertions[1]: Assertion failed: untracked")
	assert.Equal(t, `assertions[2]: unknown assertion type "bogus"`, errs[1])
}

func TestAssertionError_ListsSettlements(t *testing.T) {
	err := &AssertionError{
		Type:     AssertSettleCount,
		Expected: "1 settlements",
		Actual:   "2 settlements",
		Trace:    sampleTrace,
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: settle_count")
	assert.Contains(t, msg, "  Expected: 1 settlements")
	assert.Contains(t, msg, "[7] B completed at seq 4")
	assert.Contains(t, msg, "[8] A forced at seq 4")
	assert.NotContains(t, msg, "invocation_started")
}

package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the settlements seen to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSettlements:\n")
	for i, entry := range e.Trace {
		if entry.Type == TraceSettled {
			fmt.Fprintf(&buf, "  [%d] %s %s at seq %d\n", i+1, entry.Label, entry.Result, entry.Seq)
		}
	}

	return buf.String()
}

// assertSettled checks that the invocation settled with the expected result,
// and at the expected seq if one is given.
func assertSettled(trace []TraceEntry, a Assertion) error {
	var found []string
	for _, entry := range trace {
		if entry.Type != TraceSettled || entry.Label != a.Invocation {
			continue
		}
		if entry.Result == a.Result && (a.Seq == 0 || entry.Seq == a.Seq) {
			return nil
		}
		found = append(found, fmt.Sprintf("%s at seq %d", entry.Result, entry.Seq))
	}

	expected := fmt.Sprintf("%s %s", a.Invocation, a.Result)
	if a.Seq != 0 {
		expected += fmt.Sprintf(" at seq %d", a.Seq)
	}
	actual := "never settled"
	if len(found) > 0 {
		actual = strings.Join(found, ", ")
	}
	return &AssertionError{Type: AssertSettled, Expected: expected, Actual: actual, Trace: trace}
}

// assertSettleOrder checks that the invocations settled in the given order.
// Other settlements may come in between.
func assertSettleOrder(trace []TraceEntry, a Assertion) error {
	positions := make(map[string]int)
	for i, entry := range trace {
		if entry.Type != TraceSettled {
			continue
		}
		if _, seen := positions[entry.Label]; !seen {
			positions[entry.Label] = i
		}
	}

	for _, label := range a.Invocations {
		if _, ok := positions[label]; !ok {
			return &AssertionError{
				Type:     AssertSettleOrder,
				Expected: fmt.Sprintf("settle order %v", a.Invocations),
				Actual:   fmt.Sprintf("%s never settled", label),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Invocations); i++ {
		prev, next := a.Invocations[i-1], a.Invocations[i]
		if positions[prev] > positions[next] {
			return &AssertionError{
				Type:     AssertSettleOrder,
				Expected: fmt.Sprintf("%s settles before %s", prev, next),
				Actual:   fmt.Sprintf("%s settled first", next),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertSettleCount checks the total number of settlements.
func assertSettleCount(trace []TraceEntry, a Assertion) error {
	count := 0
	for _, entry := range trace {
		if entry.Type == TraceSettled {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertSettleCount,
			Expected: fmt.Sprintf("%d settlements", a.Count),
			Actual:   fmt.Sprintf("%d settlements", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertUntracked checks that no registration was attached to the
// invocation.
func assertUntracked(trace []TraceEntry, a Assertion) error {
	for _, entry := range trace {
		if entry.Type == TraceTracked && entry.Label == a.Invocation {
			return &AssertionError{
				Type:     AssertUntracked,
				Expected: fmt.Sprintf("%s never tracked", a.Invocation),
				Actual:   fmt.Sprintf("tracked at seq %d", entry.Seq),
				Trace:    trace,
			}
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion against the result's trace and
// returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSettled:
			err = assertSettled(result.Trace, a)
		case AssertSettleOrder:
			err = assertSettleOrder(result.Trace, a)
		case AssertSettleCount:
			err = assertSettleCount(result.Trace, a)
		case AssertUntracked:
			err = assertUntracked(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

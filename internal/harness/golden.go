package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/settle/internal/event"
)

// GoldenDir is where harness tests keep golden traces, relative to the
// package directory.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden-file form of a scenario trace.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEntry `json:"trace"`
}

// Snapshot pairs a scenario name with the trace of its result.
func Snapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{ScenarioName: name, Trace: result.Trace}
}

// MarshalCanonical encodes the snapshot as canonical JSON. Two runs of the
// same scenario produce identical bytes.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	trace := make([]any, 0, len(s.Trace))
	for _, entry := range s.Trace {
		trace = append(trace, entry.canonical())
	}
	return event.MarshalCanonical(map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	})
}

// canonical drops empty fields so the golden file only carries what the
// entry type uses.
func (e TraceEntry) canonical() map[string]any {
	m := map[string]any{"type": e.Type, "seq": e.Seq}
	for key, value := range map[string]string{"kind": e.Kind, "label": e.Label, "result": e.Result} {
		if value != "" {
			m[key] = value
		}
	}
	return m
}

// RunWithGolden runs scenario and checks its trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden checks a finished result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot(scenarioName, result)
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, scenarioName, data)
	return nil
}

package harness

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/settle/internal/event"
)

// Scenario defines a conformance scenario: a scripted interleaving of
// registrations and events with expectations about what each consumer was
// told.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Invocations maps labels to the calls they stand for. Steps refer to
	// invocations by label.
	Invocations map[string]CallSpec `yaml:"invocations"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the trace after the final shutdown.
	// Supported types: settled, settle_order, settle_count, untracked.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// CallSpec describes one invocation.
type CallSpec struct {
	Actor  string         `yaml:"actor"`
	Target string         `yaml:"target"`
	Params map[string]any `yaml:"params,omitempty"`
}

// RecordSpec describes one record.
type RecordSpec struct {
	Type    string `yaml:"type"`
	Content string `yaml:"content"`
}

// Step does exactly one of: stage a registration for the consumer labelled
// Register, feed one Event, or Shutdown the tracker.
type Step struct {
	// Register stages a registration; the next invocation_started event
	// consumes it. The value labels the consumer.
	Register string `yaml:"register,omitempty"`

	// Event is an event kind. Which of the fields below it needs depends on
	// the kind.
	Event       string      `yaml:"event,omitempty"`
	Invocation  string      `yaml:"invocation,omitempty"`
	Record      *RecordSpec `yaml:"record,omitempty"`
	MsgID       string      `yaml:"msg_id,omitempty"`
	MessageKind string      `yaml:"message_kind,omitempty"`

	// Shutdown forces every outstanding invocation.
	Shutdown bool `yaml:"shutdown,omitempty"`

	// Expect is checked after the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes tracker state after a step. A nil list is not checked;
// an empty list asserts that nothing is in that state.
type Expect struct {
	// Completed lists every consumer told Completed so far.
	Completed []string `yaml:"completed"`

	// Forced lists every consumer told ForcedCompletion so far.
	Forced []string `yaml:"forced"`

	// Pending lists every invocation still tracked.
	Pending []string `yaml:"pending"`

	// Current is the invocation label of the attribution target, or "none".
	// Empty means unchecked.
	Current string `yaml:"current,omitempty"`
}

// CurrentNone is the Expect.Current value for "no attribution target".
const CurrentNone = "none"

// Assertion validates the final trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "settled": Invocation settled with Result (and at Seq, if set)
	// - "settle_order": Invocations settled in this order
	// - "settle_count": exactly Count settlements happened
	// - "untracked": Invocation was never tracked
	Type string `yaml:"type"`

	// Invocation is the invocation label (settled, untracked).
	Invocation string `yaml:"invocation,omitempty"`

	// Result is "completed" or "forced" (settled).
	Result string `yaml:"result,omitempty"`

	// Seq optionally pins the settling event (settled).
	Seq int64 `yaml:"seq,omitempty"`

	// Invocations is the expected settle order (settle_order).
	Invocations []string `yaml:"invocations,omitempty"`

	// Count is the expected number of settlements (settle_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertSettled     = "settled"
	AssertSettleOrder = "settle_order"
	AssertSettleCount = "settle_count"
	AssertUntracked   = "untracked"
)

// LoadScenario reads and parses a scenario file. Files ending in .cue are
// evaluated with CUE; .yaml and .yml files are parsed as YAML.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		scenario, err = decodeYAML(data)
	case ".cue":
		scenario, err = decodeCUE(path, data)
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

func decodeYAML(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// decodeCUE evaluates a CUE scenario and decodes its JSON export through
// the YAML path, so both formats share field names and strictness.
func decodeCUE(path string, data []byte) (*Scenario, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE: %w", err)
	}
	// Incomplete values fail the export.
	exported, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE: %w", err)
	}
	return decodeYAML(exported)
}

// FindScenarios returns the scenario files under dir, sorted by path.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".cue":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and every label
// resolves.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if _, err := buildCalls(s.Invocations); err != nil {
		return err
	}

	consumers := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(s, step, i); err != nil {
			return err
		}
		if step.Register == "" {
			continue
		}
		if consumers[step.Register] {
			return fmt.Errorf("steps[%d]: consumer %q registered twice", i, step.Register)
		}
		consumers[step.Register] = true
	}

	for i, step := range s.Steps {
		if step.Expect == nil {
			continue
		}
		if err := validateExpect(s, consumers, step.Expect, i); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(s, a, i); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(s *Scenario, step Step, index int) error {
	actions := 0
	if step.Register != "" {
		actions++
	}
	if step.Event != "" {
		actions++
	}
	if step.Shutdown {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of register, event, shutdown is required", index)
	}
	if step.Event == "" {
		if step.Invocation != "" || step.Record != nil || step.MsgID != "" || step.MessageKind != "" {
			return fmt.Errorf("steps[%d]: event fields set without event", index)
		}
		return nil
	}

	switch event.Kind(step.Event) {
	case event.KindInvocationStarted, event.KindInvocationReturned:
		if _, ok := s.Invocations[step.Invocation]; !ok {
			return fmt.Errorf("steps[%d]: unknown invocation %q", index, step.Invocation)
		}
	case event.KindRecordWritten, event.KindRecordDurable:
		if step.Record == nil || step.Record.Type == "" {
			return fmt.Errorf("steps[%d]: record with a type is required for %s", index, step.Event)
		}
	case event.KindPeerMessageSent:
		if step.MsgID == "" {
			return fmt.Errorf("steps[%d]: msg_id is required for %s", index, step.Event)
		}
		if step.MessageKind == "" {
			return fmt.Errorf("steps[%d]: message_kind is required for %s", index, step.Event)
		}
	case event.KindPeerMessageResolved, event.KindPeerMessageTimedOut:
		if step.MsgID == "" {
			return fmt.Errorf("steps[%d]: msg_id is required for %s", index, step.Event)
		}
	default:
		// Unknown kinds are fed through as "other" events.
	}
	return nil
}

func validateExpect(s *Scenario, consumers map[string]bool, e *Expect, index int) error {
	for _, label := range slices.Concat(e.Completed, e.Forced) {
		if !consumers[label] {
			return fmt.Errorf("steps[%d]: expect: unknown consumer %q", index, label)
		}
	}
	for _, label := range e.Pending {
		if _, ok := s.Invocations[label]; !ok {
			return fmt.Errorf("steps[%d]: expect: unknown invocation %q", index, label)
		}
	}
	if e.Current != "" && e.Current != CurrentNone {
		if _, ok := s.Invocations[e.Current]; !ok {
			return fmt.Errorf("steps[%d]: expect: unknown invocation %q", index, e.Current)
		}
	}
	return nil
}

// validateAssertion checks that an assertion has its required fields.
func validateAssertion(s *Scenario, a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	known := func(label string) error {
		if _, ok := s.Invocations[label]; !ok {
			return fmt.Errorf("assertions[%d]: unknown invocation %q", index, label)
		}
		return nil
	}

	switch a.Type {
	case AssertSettled:
		if err := known(a.Invocation); err != nil {
			return err
		}
		if a.Result != "completed" && a.Result != "forced" {
			return fmt.Errorf("assertions[%d]: result must be completed or forced for settled", index)
		}
	case AssertSettleOrder:
		if len(a.Invocations) == 0 {
			return fmt.Errorf("assertions[%d]: invocations list is required for settle_order", index)
		}
		for _, label := range a.Invocations {
			if err := known(label); err != nil {
				return err
			}
		}
	case AssertSettleCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for settle_count", index)
		}
	case AssertUntracked:
		if err := known(a.Invocation); err != nil {
			return err
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// buildCalls converts invocation declarations into calls.
func buildCalls(decls map[string]CallSpec) (map[string]event.Call, error) {
	calls := make(map[string]event.Call, len(decls))
	for label, decl := range decls {
		if decl.Actor == "" || decl.Target == "" {
			return nil, fmt.Errorf("invocations[%s]: actor and target are required", label)
		}
		params, err := event.ToObject(decl.Params)
		if err != nil {
			return nil, fmt.Errorf("invocations[%s]: params: %w", label, err)
		}
		calls[label] = event.Call{Actor: decl.Actor, Target: decl.Target, Params: params}
	}
	return calls, nil
}

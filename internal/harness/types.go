package harness

// Trace entry types.
const (
	TraceEvent   = "event"
	TraceTracked = "tracked"
	TraceSettled = "settled"
)

// TraceEntry is one line of a scenario trace: an event fed to the tracker,
// a registration attached to an invocation, or a settled invocation.
type TraceEntry struct {
	Type   string `json:"type"`
	Kind   string `json:"kind,omitempty"`
	Label  string `json:"label,omitempty"`
	Result string `json:"result,omitempty"`
	Seq    int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists entries in the order the tracker produced them.
	Trace []TraceEntry `json:"trace"`

	// Errors contains failed expectations and assertions.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Consumers maps each consumer label to what it received: "completed",
	// "forced", or the error its wait ended with.
	Consumers map[string]string `json:"consumers"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEntry{},
		Errors:    []string{},
		Consumers: make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Settled returns the settled entries of the trace.
func (r *Result) Settled() []TraceEntry {
	var out []TraceEntry
	for _, e := range r.Trace {
		if e.Type == TraceSettled {
			out = append(out, e)
		}
	}
	return out
}

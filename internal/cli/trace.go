package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/event"
	"github.com/roach88/settle/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	RunID      string // optional - defaults to the latest run
	Invocation string // optional - invocation ID or unique prefix
}

// TrackingRecord is one registration attached to an invocation.
type TrackingRecord struct {
	Registration string             `json:"registration_id"`
	Invocation   event.InvocationID `json:"invocation_id"`
	Seq          int64              `json:"seq"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Tracked     int `json:"tracked"`
	Completed   int `json:"completed"`
	Forced      int `json:"forced"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID         string           `json:"run_id"`
	Name          string           `json:"name"`
	EngineVersion string           `json:"engine_version"`
	Invocation    string           `json:"invocation_id,omitempty"`
	Events        []event.Event    `json:"events"`
	Trackings     []TrackingRecord `json:"trackings"`
	Outcomes      []OutcomeRecord  `json:"outcomes"`
	Stats         TraceStats       `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the timeline of a journaled run",
		Long: `Show the timeline of a journaled run: every event in seq order, the
registrations attached to invocation starts, and what each registration was
told.

With --invocation, only the start and return of that invocation and its
registrations are shown. A unique prefix of the ID is enough.

Examples:
  settle trace --db ./settle.db
  settle trace --db ./settle.db --run 0190c7e2-...
  settle trace --db ./settle.db --invocation 3fa9c2 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Invocation, "invocation", "", "filter to one invocation (ID or unique prefix)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := findRun(ctx, st, opts.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) && opts.RunID == "" {
			_ = f.Error(ErrCodeNotFound, "no runs in database", nil)
			return NewExitError(ExitCommandError, "no runs in database")
		}
		return runLookupError(f, opts.RunID, err)
	}

	result, err := buildTrace(ctx, st, run, opts.Invocation)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			_ = f.Error(ErrCodeNotFound, exitErr.Message, nil)
			return err
		}
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if f.JSON() {
		return f.Respond(result, nil)
	}
	printTrace(f, result)
	return nil
}

func findRun(ctx context.Context, st *store.Store, runID string) (store.Run, error) {
	if runID == "" {
		return st.LatestRun(ctx)
	}
	return st.ReadRun(ctx, runID)
}

func buildTrace(ctx context.Context, st *store.Store, run store.Run, prefix string) (TraceResult, error) {
	result := TraceResult{
		RunID:         run.ID,
		Name:          run.Name,
		EngineVersion: run.EngineVersion,
		Trackings:     []TrackingRecord{},
		Outcomes:      []OutcomeRecord{},
	}

	events, err := st.ReadEvents(ctx, run.ID)
	if err != nil {
		return result, err
	}
	targets := startTargets(events)

	var id event.InvocationID
	if prefix != "" {
		id, err = resolveInvocation(events, prefix)
		if err != nil {
			return result, err
		}
		result.Invocation = string(id)
		events, err = st.ReadInvocationEvents(ctx, run.ID, id)
		if err != nil {
			return result, err
		}
	}
	result.Events = events
	result.Stats.TotalEvents = len(events)

	trackings, err := st.ReadTrackings(ctx, run.ID)
	if err != nil {
		return result, err
	}
	for _, tr := range trackings {
		if id != "" && tr.Invocation != id {
			continue
		}
		result.Trackings = append(result.Trackings, TrackingRecord{
			Registration: tr.Registration,
			Invocation:   tr.Invocation,
			Seq:          tr.Seq,
		})
	}
	result.Stats.Tracked = len(result.Trackings)

	outcomes, err := st.ReadOutcomes(ctx, run.ID)
	if err != nil {
		return result, err
	}
	for _, out := range outcomes {
		if id != "" && out.Invocation != id {
			continue
		}
		result.Outcomes = append(result.Outcomes, OutcomeRecord{
			Invocation:   out.Invocation,
			Target:       targets[out.Invocation],
			Result:       out.Result,
			Seq:          out.Seq,
			ConsumerGone: out.ConsumerGone,
		})
		switch out.Result {
		case "completed":
			result.Stats.Completed++
		case "forced":
			result.Stats.Forced++
		}
	}
	return result, nil
}

// startTargets maps each started invocation to its call target.
func startTargets(events []event.Event) map[event.InvocationID]string {
	targets := make(map[event.InvocationID]string)
	for _, ev := range events {
		if ev.Kind == event.KindInvocationStarted && ev.Call != nil {
			targets[ev.Invocation] = ev.Call.Target
		}
	}
	return targets
}

// resolveInvocation finds the one invocation in events whose ID starts
// with prefix.
func resolveInvocation(events []event.Event, prefix string) (event.InvocationID, error) {
	var match event.InvocationID
	for _, ev := range events {
		if ev.Invocation == "" || ev.Invocation == match {
			continue
		}
		if !strings.HasPrefix(string(ev.Invocation), prefix) {
			continue
		}
		if match != "" {
			return "", NewExitError(ExitCommandError, fmt.Sprintf("invocation prefix %q is ambiguous", prefix))
		}
		match = ev.Invocation
	}
	if match == "" {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("invocation %s not found in run", prefix))
	}
	return match, nil
}

func printTrace(f *OutputFormatter, result TraceResult) {
	f.Printf("Trace for Run: %s (%s, engine %s)\n", result.RunID, result.Name, result.EngineVersion)
	if result.Invocation != "" {
		f.Printf("Invocation: %s\n", result.Invocation)
	}
	f.Printf("\n=== Timeline ===\n")

	trackedAt := make(map[int64][]TrackingRecord)
	for _, tr := range result.Trackings {
		trackedAt[tr.Seq] = append(trackedAt[tr.Seq], tr)
	}
	settledAt := make(map[int64][]OutcomeRecord)
	for _, out := range result.Outcomes {
		settledAt[out.Seq] = append(settledAt[out.Seq], out)
	}

	if len(result.Events) == 0 {
		f.Printf("  (no events)\n")
	}
	for _, ev := range result.Events {
		f.Printf("  [%d] %s%s\n", ev.Seq, ev, callSuffix(ev, f.Verbose))
		for _, tr := range trackedAt[ev.Seq] {
			f.Printf("       tracked by %s\n", tr.Registration)
		}
		for _, out := range settledAt[ev.Seq] {
			f.Printf("       %s %s%s\n", out.Result, out.Invocation.Short(), goneSuffix(out.ConsumerGone))
		}
		delete(settledAt, ev.Seq)
	}
	// With --invocation the settling event is usually filtered out.
	for _, out := range result.Outcomes {
		if _, ok := settledAt[out.Seq]; ok {
			f.Printf("  [%d] %s %s%s\n", out.Seq, out.Result, out.Invocation.Short(), goneSuffix(out.ConsumerGone))
		}
	}

	f.Printf("\n=== Stats ===\n")
	f.Printf("  Total Events: %d\n", result.Stats.TotalEvents)
	f.Printf("  Tracked:      %d\n", result.Stats.Tracked)
	f.Printf("  Completed:    %d\n", result.Stats.Completed)
	f.Printf("  Forced:       %d\n", result.Stats.Forced)
}

func callSuffix(ev event.Event, verbose bool) string {
	if ev.Call == nil {
		return ""
	}
	s := fmt.Sprintf(" %s -> %s", ev.Call.Actor, ev.Call.Target)
	if verbose && len(ev.Call.Params) > 0 {
		if params, err := event.MarshalCanonical(ev.Call.Params); err == nil {
			s += " " + string(params)
		}
	}
	return s
}

func goneSuffix(gone bool) string {
	if gone {
		return " (consumer gone)"
	}
	return ""
}

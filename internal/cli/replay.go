package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/journal"
	"github.com/roach88/settle/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Runs             []journal.ReplayResult `json:"runs"`
	TotalRuns        int                    `json:"total_runs"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled runs and verify determinism",
		Long: `Replay journaled runs through a fresh tracker and compare the outcomes
with the ones recorded during the run.

Exit codes:
  0 - All runs replay to the recorded outcomes
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  settle replay --db ./settle.db
  settle replay --db ./settle.db --run 0190c7e2-...
  settle replay --db ./settle.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay a specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	var runIDs []string
	if opts.RunID != "" {
		if _, err := st.ReadRun(ctx, opts.RunID); err != nil {
			return runLookupError(f, opts.RunID, err)
		}
		runIDs = []string{opts.RunID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	summary := ReplaySummary{
		Runs:             make([]journal.ReplayResult, 0, len(runIDs)),
		TotalRuns:        len(runIDs),
		AllDeterministic: true,
	}
	if len(runIDs) == 0 {
		if f.JSON() {
			return f.Respond(summary, nil)
		}
		f.Printf("No runs found in database.\n")
		return nil
	}

	for _, id := range runIDs {
		res, err := journal.Replay(ctx, st, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
		}
		summary.Runs = append(summary.Runs, res)
		if !res.Deterministic {
			summary.AllDeterministic = false
		}
	}

	if f.JSON() {
		var cliErr *CLIError
		if !summary.AllDeterministic {
			cliErr = &CLIError{Code: ErrCodeNonDeterministic, Message: "replay differs from the recorded outcomes"}
		}
		if err := f.Respond(summary, cliErr); err != nil {
			return err
		}
	} else {
		printReplay(f, summary)
	}

	if !summary.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func printReplay(f *OutputFormatter, summary ReplaySummary) {
	f.Printf("Replaying %d run(s)...\n\n", summary.TotalRuns)
	for _, r := range summary.Runs {
		status := "✓"
		if !r.Deterministic {
			status = "✗"
		}
		f.Printf("%s %s: %d events, %d outcomes\n", status, r.RunID, r.Events, len(r.Replayed))

		if !r.Deterministic || f.Verbose {
			for _, s := range r.Recorded {
				f.Printf("    recorded %-9s %s seq=%d\n", s.Result, s.Invocation.Short(), s.Seq)
			}
			for _, s := range r.Replayed {
				f.Printf("    replayed %-9s %s seq=%d\n", s.Result, s.Invocation.Short(), s.Seq)
			}
		}
	}

	if summary.AllDeterministic {
		f.Printf("\n✓ All runs deterministic\n")
	} else {
		f.Printf("\n✗ Determinism verification failed\n")
	}
}

// openExisting opens a journal database that must already exist. Open
// alone would create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runLookupError(f *OutputFormatter, runID string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	return WrapExitError(ExitCommandError, "failed to read run", err)
}

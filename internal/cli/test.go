package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern on the file name)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or empty when there is none
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-path>...",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios (YAML or CUE) against the tracker.

Each path is a scenario file or a directory searched recursively. A
scenario passes when every step expectation and assertion holds and, if
golden/<name>.golden exists next to the scenario file, its trace matches.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  settle test ./testdata/scenarios
  settle test ./testdata/scenarios --filter 'peer_*'
  settle test ./testdata/scenarios --update
  settle test ./testdata/scenarios/literal_ab.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	files, err := collectScenarioFiles(paths)
	if err != nil {
		return err
	}
	files = filterScenarios(files, opts.Filter)

	f := opts.formatter(cmd)
	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}

	if len(files) == 0 {
		if f.JSON() {
			return f.Respond(result, nil)
		}
		f.Printf("No scenarios found.\n")
		return nil
	}

	for _, file := range files {
		sr := runScenario(file, opts)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
			f.Printf("✓ %s%s\n", sr.Name, goldenSuffix(sr.Golden))
		} else {
			result.Failed++
			f.Printf("✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				f.Printf("  %s\n", e)
			}
		}
	}

	var cliErr *CLIError
	if result.Failed > 0 {
		cliErr = &CLIError{Code: ErrCodeTestFailed, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)}
	}
	if f.JSON() {
		if err := f.Respond(result, cliErr); err != nil {
			return err
		}
	} else {
		f.Printf("\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	f.Printf("✓ All scenarios passed\n")
	return nil
}

func goldenSuffix(golden string) string {
	if golden == "updated" {
		return " (golden updated)"
	}
	return ""
}

// collectScenarioFiles expands directories into the scenario files they
// contain.
func collectScenarioFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", p), err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := harness.FindScenarios(p)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}
	return files, nil
}

func filterScenarios(files []string, filter string) []string {
	if filter == "" {
		return files
	}
	var out []string
	for _, file := range files {
		base := filepath.Base(file)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if ok, _ := filepath.Match(filter, name); ok {
			out = append(out, file)
		}
	}
	return out
}

// runScenario loads, runs and golden-checks one scenario file.
func runScenario(file string, opts *TestOptions) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	sr := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}

	snapshot := harness.Snapshot(scenario.Name, result)
	current, err := snapshot.MarshalCanonical()
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return sr
	}

	goldenPath := goldenFilePath(file)
	if opts.Update {
		if err := writeGolden(goldenPath, current); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file: expectations and assertions decide.
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(golden, current):
		sr.Pass = false
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	default:
		sr.Golden = "match"
	}
	return sr
}

// goldenFilePath returns golden/<name>.golden next to the scenario file.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

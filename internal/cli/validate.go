package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/source"
)

// FileValidation is the validation outcome for one file.
type FileValidation struct {
	Path   string   `json:"path"`
	Kind   string   `json:"kind"` // "scenario" or "events"
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate scenario files and event streams",
		Long: `Validate scenario files (.yaml, .yml, .cue) and event streams (.jsonl,
.ndjson) without running them.

Scenarios are parsed strictly and every label is resolved. Event streams
are decoded line by line; every malformed line is reported.

Directories are searched recursively for scenario files.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	files, err := collectValidateFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		_ = f.Error(ErrCodeNotFound, "no files to validate", paths)
		return NewExitError(ExitCommandError, "no files to validate")
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		fv := validateFile(file)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if f.JSON() {
		var cliErr *CLIError
		if !result.Valid {
			cliErr = &CLIError{Code: ErrCodeInvalid, Message: "validation failed"}
		}
		if err := f.Respond(result, cliErr); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				if f.Verbose {
					f.Printf("✓ %s (%s)\n", fv.Path, fv.Kind)
				}
				continue
			}
			f.Printf("✗ %s\n", fv.Path)
			for _, e := range fv.Errors {
				f.Printf("  %s\n", e)
			}
		}
		if result.Valid {
			f.Printf("✓ %d file(s) valid\n", len(result.Files))
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func collectValidateFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("path not found: %s", p), err)
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

func validateFile(path string) FileValidation {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		fv := FileValidation{Path: path, Kind: "events"}
		fv.Errors = validateEvents(path)
		fv.Valid = len(fv.Errors) == 0
		return fv
	default:
		fv := FileValidation{Path: path, Kind: "scenario", Valid: true}
		if _, err := harness.LoadScenario(path); err != nil {
			fv.Valid = false
			fv.Errors = []string{err.Error()}
		}
		return fv
	}
}

// validateEvents decodes an event stream with the same line rules as run
// and reports every line that would be skipped.
func validateEvents(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		return []string{fmt.Sprintf("failed to open events file: %v", err)}
	}
	defer file.Close()

	var errs []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if _, err := source.Decode(line); err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineNo, err))
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Sprintf("failed to read events: %v", err))
	}
	return errs
}

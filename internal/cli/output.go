package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failures, invalid files, non-deterministic replay
	ExitCommandError = 2 // Command error (unreadable input, database not found, etc.)
)

// Error codes reported in JSON output.
const (
	ErrCodeNotFound         = "E_NOT_FOUND"
	ErrCodeInvalid          = "E_INVALID"
	ErrCodeTestFailed       = "E_TEST_FAILED"
	ErrCodeNonDeterministic = "E_NON_DETERMINISTIC"
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every command's output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as JSON or text.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// JSON reports whether the formatter writes JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Respond writes a JSON envelope around data. A non-nil cliErr marks the
// response as failed; the data is still included.
func (f *OutputFormatter) Respond(data any, cliErr *CLIError) error {
	resp := CLIResponse{Status: "ok", Data: data}
	if cliErr != nil {
		resp.Status = "error"
		resp.Error = cliErr
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Error writes an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.Respond(nil, &CLIError{Code: code, Message: message, Details: details})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Printf writes text output. It is silent in JSON mode so the envelope
// stays parseable.
func (f *OutputFormatter) Printf(format string, args ...any) {
	if f.JSON() {
		return
	}
	fmt.Fprintf(f.Writer, format, args...)
}

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is loaded from the environment before any subcommand runs.
	// Subcommands built on their own (in tests) load it lazily.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// settings returns the environment configuration, loading it on first use.
func (o *RootOptions) settings() (config.Config, error) {
	if o.Config != nil {
		return *o.Config, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	o.Config = &cfg
	return cfg, nil
}

// formatter builds the output formatter for a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Verbose: o.Verbose}
}

// NewRootCommand creates the root command for the settle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "settle - completion detection for event-sourced invocations",
		Long: `settle watches an event stream and tells callers when an invocation has
settled: it returned, every record it wrote is durable, and every peer
message it sent has resolved or timed out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := opts.settings()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			setupLogging(cmd.ErrOrStderr(), cfg.LogFormat, opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// setupLogging installs the default slog logger. Logs go to w (stderr) so
// they never mix with command output.
func setupLogging(w io.Writer, format string, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(w, hopts)
	if format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(handler))
}

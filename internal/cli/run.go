package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/event"
	"github.com/roach88/settle/internal/journal"
	"github.com/roach88/settle/internal/source"
	"github.com/roach88/settle/internal/store"
	"github.com/roach88/settle/internal/telemetry"
	"github.com/roach88/settle/internal/tracker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	Name       string
	Poll       time.Duration
	Await      []string
	MQTTBroker string
	MQTTTopic  string
}

// OutcomeRecord is one settled invocation as reported by run.
type OutcomeRecord struct {
	Invocation   event.InvocationID `json:"invocation_id"`
	Target       string             `json:"target,omitempty"`
	Result       string             `json:"result"`
	Seq          int64              `json:"seq"`
	ConsumerGone bool               `json:"consumer_gone,omitempty"`
}

// RunSummary is the final report of the run command.
type RunSummary struct {
	RunID     string          `json:"run_id,omitempty"`
	Events    int             `json:"events"`
	Completed int             `json:"completed"`
	Forced    int             `json:"forced"`
	Outcomes  []OutcomeRecord `json:"outcomes"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [events-file]",
		Short: "Track invocations in an event stream",
		Long: `Read events (one JSON object per line) from a file, stdin, or an MQTT
topic and report when awaited invocations settle.

Invocations whose target matches an --await pattern are registered as they
start. When the input ends or the process is interrupted, every invocation
still pending is reported as forced.

Flags default to the SETTLE_* environment variables.

Examples:
  settle run --await 'blog.*' events.jsonl
  tail -f events.jsonl | settle run --await '*' --db ./settle.db
  settle run --mqtt-broker tcp://localhost:1883 --await 'chat.send'`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.settings()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.applyConfig(cmd, cfg)
			return runSettle(opts, cfg, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the run to this SQLite database")
	cmd.Flags().StringVar(&opts.Name, "name", "run", "name of the journaled run")
	cmd.Flags().DurationVar(&opts.Poll, "poll", tracker.DefaultPollInterval, "source poll interval")
	cmd.Flags().StringSliceVar(&opts.Await, "await", nil, "await invocations whose target matches this pattern (repeatable)")
	cmd.Flags().StringVar(&opts.MQTTBroker, "mqtt-broker", "", "read events from this MQTT broker instead of a file")
	cmd.Flags().StringVar(&opts.MQTTTopic, "mqtt-topic", "", "MQTT topic to subscribe to")

	return cmd
}

// applyConfig fills flags the user did not set from the environment.
func (o *RunOptions) applyConfig(cmd *cobra.Command, cfg config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("db") {
		o.Database = cfg.DB
	}
	if !flags.Changed("poll") {
		o.Poll = cfg.PollInterval
	}
	if !flags.Changed("mqtt-broker") {
		o.MQTTBroker = cfg.MQTTBroker
	}
	if !flags.Changed("mqtt-topic") {
		o.MQTTTopic = cfg.MQTTTopic
	}
}

func runSettle(opts *RunOptions, cfg config.Config, args []string, cmd *cobra.Command) error {
	if opts.Poll <= 0 {
		return NewExitError(ExitCommandError, "poll interval must be positive")
	}
	if opts.MQTTBroker != "" && len(args) > 0 {
		return NewExitError(ExitCommandError, "events file and --mqtt-broker are mutually exclusive")
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTelEndpoint, journal.EngineVersion)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	f := opts.formatter(cmd)
	printer := newOutcomePrinter(f)
	observers := tracker.Observers{printer}

	var jrnl *journal.Journal
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				slog.Error("error closing database", "error", err)
			}
		}()

		// The journal outlives ctx: forced outcomes are written after an
		// interrupt.
		jrnl, err = journal.Start(context.WithoutCancel(ctx), st, opts.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal", err)
		}
		observers = append(observers, jrnl)
		printer.summary.RunID = jrnl.RunID()
	}

	q := tracker.NewQueue()
	staged := tracker.NewStaged()
	src, err := newAwaitSource(q, staged, opts.Await)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --await", err)
	}

	readErr := make(chan error, 1)
	if opts.MQTTBroker != "" {
		sub, err := source.SubscribeMQTT(source.MQTTConfig{
			Broker:   opts.MQTTBroker,
			Topic:    opts.MQTTTopic,
			ClientID: cfg.MQTTClientID,
			QoS:      cfg.MQTTQoS,
		}, q)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to subscribe", err)
		}
		defer sub.Close()
	} else {
		r, closeInput, err := openInput(cmd, args)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open events file", err)
		}
		defer closeInput()

		go func() {
			_, err := source.ReadLines(ctx, r, q)
			q.Close()
			readErr <- err
		}()
	}

	tr := tracker.New(staged, tracker.WithObserver(observers))
	runner := tracker.NewRunner(src, tr, tracker.WithPollInterval(opts.Poll))

	slog.Info("settle running", "await", opts.Await, "poll", opts.Poll, "db", opts.Database)
	runErr := runner.Run(ctx)
	src.Wait()

	switch {
	case errors.Is(runErr, tracker.ErrSourceClosed):
		if err := <-readErr; err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
	case runErr != nil:
		return WrapExitError(ExitFailure, "runner stopped", runErr)
	}

	if jrnl != nil && jrnl.Err() != nil {
		return WrapExitError(ExitFailure, "journal incomplete", jrnl.Err())
	}

	return printer.finish()
}

// openInput returns the events reader: the named file, or stdin for no
// argument or "-".
func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// outcomePrinter reports settled invocations as they happen. It runs on
// the runner goroutine.
type outcomePrinter struct {
	f          *OutputFormatter
	lastTarget string
	targets    map[event.InvocationID]string
	summary    RunSummary
}

func newOutcomePrinter(f *OutputFormatter) *outcomePrinter {
	return &outcomePrinter{
		f:       f,
		targets: make(map[event.InvocationID]string),
		summary: RunSummary{Outcomes: []OutcomeRecord{}},
	}
}

func (p *outcomePrinter) Observed(ev event.Event) {
	p.summary.Events++
	if ev.Kind != event.KindInvocationStarted {
		return
	}
	p.lastTarget = ""
	if ev.Call != nil {
		p.lastTarget = ev.Call.Target
	}
}

func (p *outcomePrinter) Tracked(id event.InvocationID, _ string, _ int64) {
	p.targets[id] = p.lastTarget
}

func (p *outcomePrinter) Settled(o tracker.Outcome) {
	rec := OutcomeRecord{
		Invocation:   o.Invocation,
		Target:       p.targets[o.Invocation],
		Result:       o.Result.String(),
		Seq:          o.Seq,
		ConsumerGone: errors.Is(o.Err, tracker.ErrConsumerGone),
	}
	delete(p.targets, o.Invocation)

	p.summary.Outcomes = append(p.summary.Outcomes, rec)
	switch o.Result {
	case tracker.Completed:
		p.summary.Completed++
	case tracker.ForcedCompletion:
		p.summary.Forced++
	}
	p.f.Printf("%-9s %s %s seq=%d\n", rec.Result, rec.Invocation.Short(), rec.Target, rec.Seq)
}

func (p *outcomePrinter) finish() error {
	if p.f.JSON() {
		return p.f.Respond(p.summary, nil)
	}
	p.f.Printf("\nRun finished: %d events, %d completed, %d forced\n",
		p.summary.Events, p.summary.Completed, p.summary.Forced)
	if p.summary.RunID != "" {
		p.f.Printf("Journal run: %s\n", p.summary.RunID)
	}
	return nil
}

package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultPollInterval bounds how long the Runner waits on an idle source
// before re-checking for shutdown.
const DefaultPollInterval = 250 * time.Millisecond

// Runner drives a Tracker from a Source.
type Runner struct {
	source   Source
	tracker  *Tracker
	poll     time.Duration
	shutdown atomic.Bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPollInterval sets the source poll timeout. Default: 250ms.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.poll = d
		}
	}
}

// NewRunner creates a Runner feeding src into tr.
func NewRunner(src Source, tr *Tracker, opts ...RunnerOption) *Runner {
	r := &Runner{
		source:  src,
		tracker: tr,
		poll:    DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes events until shutdown is requested, ctx is cancelled, or
// the source fails. Both shutdown and cancellation are checked between
// events, so events still queued at that point are left unprocessed. They
// return nil; a source failure, including ErrSourceClosed, is returned
// wrapped.
//
// On every exit the tracker is shut down, forcing outstanding invocations,
// and the tracker's intake is stopped.
//
// Run must be called from exactly one goroutine.
func (r *Runner) Run(ctx context.Context) (err error) {
	slog.Info("runner starting", "poll_interval", r.poll)

	defer func() {
		r.tracker.Shutdown(context.WithoutCancel(ctx))
		r.tracker.intake.Stop()
		slog.Info("runner stopped", "error", err)
	}()

	for !r.shutdown.Load() {
		if ctx.Err() != nil {
			slog.Info("runner stopping: context cancelled")
			return nil
		}

		ev, nextErr := r.source.Next(ctx, r.poll)
		switch {
		case nextErr == nil:
			r.tracker.ProcessEvent(ctx, ev)
		case errors.Is(nextErr, ErrPollTimeout):
			continue
		case ctx.Err() != nil && errors.Is(nextErr, ctx.Err()):
			slog.Info("runner stopping: context cancelled")
			return nil
		default:
			slog.Error("event source failed", "error", nextErr)
			return fmt.Errorf("event source: %w", nextErr)
		}
	}

	slog.Info("runner stopping: shutdown requested")
	return nil
}

// RequestShutdown asks Run to stop after the current poll cycle. Safe from
// any goroutine.
func (r *Runner) RequestShutdown() {
	r.shutdown.Store(true)
}

// Tracker returns the tracker driven by r.
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/roach88/settle/internal/event"
	"github.com/roach88/settle/internal/tracker"
)

// awaitSource wraps a source and stages a registration right before
// handing the runner an invocation_started event whose target matches one
// of the patterns. Staging happens on the runner goroutine, so the
// registration is consumed by exactly that event.
type awaitSource struct {
	src      tracker.Source
	staged   *tracker.Staged
	patterns []string

	wg sync.WaitGroup
}

func newAwaitSource(src tracker.Source, staged *tracker.Staged, patterns []string) (*awaitSource, error) {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid await pattern %q: %w", p, err)
		}
	}
	return &awaitSource{src: src, staged: staged, patterns: patterns}, nil
}

func (a *awaitSource) Next(ctx context.Context, timeout time.Duration) (event.Event, error) {
	ev, err := a.src.Next(ctx, timeout)
	if err != nil || ev.Kind != event.KindInvocationStarted || !a.matches(ev) {
		return ev, err
	}

	reg, h := tracker.NewRegistration()
	if err := a.staged.Stage(reg); err != nil {
		slog.Warn("could not register for invocation", "invocation_id", ev.Invocation.Short(), "error", err)
		return ev, nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if _, err := h.Wait(context.Background()); err != nil {
			slog.Debug("registration ended without a result", "registration_id", h.ID(), "error", err)
		}
	}()
	return ev, nil
}

func (a *awaitSource) matches(ev event.Event) bool {
	target := ""
	if ev.Call != nil {
		target = ev.Call.Target
	}
	for _, p := range a.patterns {
		if ok, _ := path.Match(p, target); ok {
			return true
		}
	}
	return false
}

// Wait blocks until every consumer started by Next has its answer.
func (a *awaitSource) Wait() {
	a.wg.Wait()
}

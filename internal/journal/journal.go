// Package journal records tracker runs to a store and replays them.
package journal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/settle/internal/event"
	"github.com/roach88/settle/internal/store"
	"github.com/roach88/settle/internal/tracker"
)

// EngineVersion is written to every journaled run.
const EngineVersion = "0.1.0"

// Journal is a tracker.Observer that writes a run to a store.
//
// Observer callbacks cannot fail, so write errors are logged and the run
// carries on; Err reports the first one.
type Journal struct {
	ctx   context.Context
	store *store.Store
	runID string
	err   error
}

var _ tracker.Observer = (*Journal)(nil)

// Start creates a run named name and returns a Journal recording into it.
func Start(ctx context.Context, st *store.Store, name string) (*Journal, error) {
	runID := uuid.Must(uuid.NewV7()).String()
	if err := st.CreateRun(ctx, store.Run{ID: runID, Name: name, EngineVersion: EngineVersion}); err != nil {
		return nil, err
	}
	slog.Info("journal started", "run_id", runID, "name", name)
	return &Journal{ctx: ctx, store: st, runID: runID}, nil
}

// RunID returns the ID of the run being recorded.
func (j *Journal) RunID() string {
	return j.runID
}

// Err returns the first write error, if any.
func (j *Journal) Err() error {
	return j.err
}

func (j *Journal) Observed(ev event.Event) {
	j.check(j.store.AppendEvent(j.ctx, j.runID, ev), "event", ev.String())
}

func (j *Journal) Tracked(id event.InvocationID, registration string, seq int64) {
	j.check(j.store.AppendTracking(j.ctx, j.runID, store.Tracking{
		Registration: registration,
		Invocation:   id,
		Seq:          seq,
	}), "tracking", registration)
}

func (j *Journal) Settled(o tracker.Outcome) {
	j.check(j.store.AppendOutcome(j.ctx, j.runID, store.Outcome{
		Registration: o.Registration,
		Invocation:   o.Invocation,
		Result:       o.Result.String(),
		Seq:          o.Seq,
		ConsumerGone: errors.Is(o.Err, tracker.ErrConsumerGone),
	}), "outcome", o.Registration)
}

func (j *Journal) check(err error, what, key string) {
	if err == nil {
		return
	}
	slog.Error("journal write failed", "run_id", j.runID, "record", what, "key", key, "error", err)
	if j.err == nil {
		j.err = err
	}
}

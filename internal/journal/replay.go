package journal

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/settle/internal/event"
	"github.com/roach88/settle/internal/store"
	"github.com/roach88/settle/internal/tracker"
)

// Settlement is one outcome compared across a journaled run and its replay.
// Registration IDs are not compared since replay creates fresh ones.
type Settlement struct {
	Invocation event.InvocationID `json:"invocation_id"`
	Result     string             `json:"result"`
	Seq        int64              `json:"seq"`
}

// ReplayResult reports whether a journaled run replays to the same
// outcomes.
type ReplayResult struct {
	RunID         string       `json:"run_id"`
	Events        int          `json:"events"`
	Deterministic bool         `json:"deterministic"`
	Recorded      []Settlement `json:"recorded"`
	Replayed      []Settlement `json:"replayed"`
}

// Replay feeds a journaled run through a fresh tracker. Before each
// invocation_started that was tracked in the run, a registration is staged
// so the start picks it up; every replayed consumer waits in the
// background, as the original ones did. At the end the tracker is shut
// down, so invocations that were forced originally are forced again.
func Replay(ctx context.Context, st *store.Store, runID string) (ReplayResult, error) {
	res := ReplayResult{RunID: runID}

	events, err := st.ReadEvents(ctx, runID)
	if err != nil {
		return res, fmt.Errorf("replay %s: %w", runID, err)
	}
	trackings, err := st.ReadTrackings(ctx, runID)
	if err != nil {
		return res, fmt.Errorf("replay %s: %w", runID, err)
	}
	recorded, err := st.ReadOutcomes(ctx, runID)
	if err != nil {
		return res, fmt.Errorf("replay %s: %w", runID, err)
	}
	res.Events = len(events)

	trackedAt := make(map[int64]int, len(trackings))
	for _, tr := range trackings {
		trackedAt[tr.Seq]++
	}

	var collected collector
	staged := tracker.NewStaged()
	tr := tracker.New(staged, tracker.WithObserver(&collected))

	var wg sync.WaitGroup
	for _, ev := range events {
		for i := 0; i < trackedAt[ev.Seq]; i++ {
			reg, h := tracker.NewRegistration()
			if err := staged.Stage(reg); err != nil {
				return res, fmt.Errorf("replay %s: %w", runID, err)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = h.Wait(context.Background())
			}()
		}
		tr.ProcessEvent(ctx, ev)
	}
	tr.Shutdown(ctx)
	staged.Stop()
	wg.Wait()

	for _, out := range recorded {
		res.Recorded = append(res.Recorded, Settlement{Invocation: out.Invocation, Result: out.Result, Seq: out.Seq})
	}
	res.Replayed = collected.settlements
	res.Deterministic = slices.Equal(sorted(res.Recorded), sorted(res.Replayed))

	slog.Info("replay finished",
		"run_id", runID,
		"events", res.Events,
		"outcomes", len(res.Replayed),
		"deterministic", res.Deterministic,
	)
	return res, nil
}

// sorted orders settlements by seq, then invocation. Several invocations
// may settle on the same event.
func sorted(s []Settlement) []Settlement {
	out := slices.Clone(s)
	slices.SortFunc(out, func(a, b Settlement) int {
		return cmp.Or(
			cmp.Compare(a.Seq, b.Seq),
			cmp.Compare(a.Invocation, b.Invocation),
			cmp.Compare(a.Result, b.Result),
		)
	})
	return out
}

type collector struct {
	settlements []Settlement
}

func (c *collector) Observed(event.Event) {}

func (c *collector) Tracked(event.InvocationID, string, int64) {}

func (c *collector) Settled(o tracker.Outcome) {
	c.settlements = append(c.settlements, Settlement{
		Invocation: o.Invocation,
		Result:     o.Result.String(),
		Seq:        o.Seq,
	})
}

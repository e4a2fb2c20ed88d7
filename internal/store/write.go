package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/settle/internal/event"
)

// CreateRun inserts a run. Re-creating an existing run is a no-op.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, engine_version)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Name, run.EngineVersion)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// AppendEvent journals an event under its seq. The run must exist.
// Uses ON CONFLICT DO NOTHING: an event already journaled at that seq is
// kept as is.
func (s *Store) AppendEvent(ctx context.Context, runID string, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, invocation_id, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, ev.Seq, string(ev.Kind), string(ev.Invocation), string(payload))
	if err != nil {
		return fmt.Errorf("append event %d: %w", ev.Seq, err)
	}
	return nil
}

// AppendTracking journals that a registration was attached to an
// invocation.
func (s *Store) AppendTracking(ctx context.Context, runID string, tr Tracking) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trackings (run_id, registration_id, invocation_id, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, tr.Registration, string(tr.Invocation), tr.Seq)
	if err != nil {
		return fmt.Errorf("append tracking %s: %w", tr.Registration, err)
	}
	return nil
}

// AppendOutcome journals what a registration was told. Each registration
// has at most one outcome; later writes are ignored.
func (s *Store) AppendOutcome(ctx context.Context, runID string, out Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, registration_id, invocation_id, result, seq, consumer_gone)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, out.Registration, string(out.Invocation), out.Result, out.Seq, out.ConsumerGone)
	if err != nil {
		return fmt.Errorf("append outcome %s: %w", out.Registration, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/settle/internal/event"
)

// ReadRun retrieves a run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, engine_version FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Name, &run.EngineVersion)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// LatestRun returns the most recently created run.
// Returns sql.ErrNoRows if the journal is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, engine_version FROM runs
		ORDER BY id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Name, &run.EngineVersion)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns all runs, oldest first (UUIDv7 order).
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, engine_version FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Name, &run.EngineVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns every event of a run in seq order.
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanEvents(rows)
}

// ReadInvocationEvents returns the start and return events journaled for
// one invocation, in seq order.
func (s *Store) ReadInvocationEvents(ctx context.Context, runID string, id event.InvocationID) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM events
		WHERE run_id = ? AND invocation_id = ?
		ORDER BY seq ASC
	`, runID, string(id))
	if err != nil {
		return nil, fmt.Errorf("query invocation events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev event.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadTrackings returns the trackings of a run.
// Results ordered by seq ASC, registration_id ASC.
func (s *Store) ReadTrackings(ctx context.Context, runID string) ([]Tracking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT registration_id, invocation_id, seq FROM trackings
		WHERE run_id = ?
		ORDER BY seq ASC, registration_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trackings: %w", err)
	}
	defer rows.Close()

	trackings := []Tracking{}
	for rows.Next() {
		var tr Tracking
		var inv string
		if err := rows.Scan(&tr.Registration, &inv, &tr.Seq); err != nil {
			return nil, fmt.Errorf("scan tracking: %w", err)
		}
		tr.Invocation = event.InvocationID(inv)
		trackings = append(trackings, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trackings: %w", err)
	}
	return trackings, nil
}

// ReadOutcomes returns the outcomes of a run.
// Results ordered by seq ASC, invocation_id ASC.
func (s *Store) ReadOutcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT registration_id, invocation_id, result, seq, consumer_gone FROM outcomes
		WHERE run_id = ?
		ORDER BY seq ASC, invocation_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []Outcome{}
	for rows.Next() {
		var out Outcome
		var inv string
		if err := rows.Scan(&out.Registration, &inv, &out.Result, &out.Seq, &out.ConsumerGone); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out.Invocation = event.InvocationID(inv)
		outcomes = append(outcomes, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

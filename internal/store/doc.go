// Package store provides SQLite-backed storage for the tracker journal.
//
// A journal records one run of the tracker:
//   - Runs: one row per run, keyed by UUIDv7
//   - Events: every event the tracker processed, as JSON
//   - Trackings: which invocation_started each registration attached to
//   - Outcomes: what each registration was told, and when
//
// All reads order by seq (the logical clock), breaking ties on ids with
// COLLATE BINARY, so a journal reads back identically every time. Writes
// are idempotent: re-appending a row with the same key is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

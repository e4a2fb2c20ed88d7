package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragma is one connection setting applied on Open.
type pragma struct {
	name  string
	value string
}

// journalPragmas are applied in order. The pool holds a single connection,
// so setting them once covers every query the journal runs.
var journalPragmas = []pragma{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migration upgrades a journal to version. Statements must be idempotent:
// schema.sql may already have created what they create.
type migration struct {
	version int
	stmt    string
}

var migrations = []migration{
	{
		// Per-invocation reads for trace --invocation.
		version: 1,
		stmt: `CREATE INDEX IF NOT EXISTS idx_events_invocation
			ON events(run_id, invocation_id, seq)`,
	},
}

// schemaVersion is the user_version of a fully migrated journal.
func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Store is a SQLite journal of tracker runs.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating it if needed, and brings its
// schema up to date. Reopening an existing journal is a no-op beyond the
// connection setup. Pass ":memory:" for a throwaway journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One writer at a time; a second connection would only see SQLITE_BUSY.
	// For ":memory:" it would also see a different database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, p := range journalPragmas {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.migrate()
}

// migrate applies every migration newer than the journal's user_version
// in one transaction.
func (s *Store) migrate() error {
	var have int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	want := schemaVersion()
	if have >= want {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= have {
			continue
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", want)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// Close releases the database. Safe on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// pragmaValue reads the current value of a pragma as text.
func (s *Store) pragmaValue(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

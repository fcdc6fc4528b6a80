// Package ledger records campaign sessions and per-run outcomes in SQLite.
//
// A session is one invocation of a mode (SUBMIT, FULL, merge...). Every run
// handled by the session gets exactly one outcome per stage; recording the
// same (session, kind, run, stage) twice is a no-op. The ledger answers
// "was this run already submitted?" so an interrupted campaign can resume
// without resubmitting.
package ledger

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added remote_dir to sessions
const currentSchemaVersion = 1

// Ledger is the SQLite-backed campaign ledger.
type Ledger struct {
	db    *sql.DB
	clock *Clock
	ids   IDGenerator
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithIDGenerator sets the session ID generator. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

// Open creates or opens the ledger at path. Pragmas and migrations are
// applied on every open; opening an existing ledger is safe.
func Open(path string, opts ...Option) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// One writer: sessions record outcomes sequentially.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	last, err := prepare(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	l := &Ledger{db: db, clock: NewClockAt(last), ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// prepare brings db to the current schema and returns the last sequence
// number in use.
func prepare(db *sql.DB) (int64, error) {
	if err := db.Ping(); err != nil {
		return 0, err
	}
	for _, pragma := range ledgerPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return 0, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return 0, fmt.Errorf("create tables: %w", err)
	}
	if err := migrate(db); err != nil {
		return 0, err
	}
	return lastSeq(db)
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

var ledgerPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// migrate upgrades ledgers older than currentSchemaVersion.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion))
	return err
}

// migrateToV1 adds sessions.remote_dir to ledgers created before it existed.
// New ledgers already have the column from schema.sql.
func migrateToV1(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('sessions') WHERE name = 'remote_dir'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE sessions ADD COLUMN remote_dir TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

func lastSeq(db *sql.DB) (int64, error) {
	var seq int64
	err := db.QueryRow(`
		SELECT MAX(s) FROM (
			SELECT COALESCE(MAX(seq), 0) AS s FROM sessions
			UNION ALL
			SELECT COALESCE(MAX(seq), 0) FROM outcomes
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq, nil
}

func (l *Ledger) pragma(name string) (string, error) {
	var value string
	err := l.db.QueryRow("PRAGMA " + name).Scan(&value)
	return value, err
}

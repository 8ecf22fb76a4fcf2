// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// The backend is a single-server deployment with two small tables plus an
// audit trail — an embedded database is the right weight. modernc.org/sqlite
// is a pure-Go translation of SQLite, so there is no CGo and no C compiler
// in the build, and cross-compilation stays trivial.
//
// The package uses database/sql throughout: sql.DB is a connection pool,
// QueryRowContext/ExecContext run statements, rows.Scan reads results.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces (see user.go and field.go). One value serves both — the
// server owns it and closes it on shutdown.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs the
// schema migration.
//
// dbPath examples:
//   - "data/swc.db"  → file-based database (persistent)
//   - ":memory:"     → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// sql.Open doesn't actually connect; Ping surfaces a bad path or
	// permissions problem now instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — needed for
	// a web server where requests overlap.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// SQLite ships with foreign keys OFF; the decision_results →
	// field_inputs and field_inputs → users references need them on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Callers should defer this
// right after New so the WAL is flushed even on a panic.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it
// idempotent across restarts.
//
// THE UNIQUE USERNAME INDEX IS LOAD-BEARING:
// Registration and first federated login both do lookup-then-create, and
// two concurrent requests can both see "absent". The UNIQUE constraint is
// what turns that race into one INSERT winning and one failing — the
// repository maps the failure to a conflict error the services know how
// to handle. Without it, duplicate accounts would slip in.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL DEFAULT 'LOCAL',
			role          TEXT NOT NULL DEFAULT 'USER',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS field_inputs (
			id         TEXT PRIMARY KEY,
			user_id    TEXT REFERENCES users(id),
			lat        REAL NOT NULL,
			lon        REAL NOT NULL,
			land_slope REAL NOT NULL DEFAULT 0,
			soil_depth TEXT NOT NULL DEFAULT '',
			rainfall   REAL NOT NULL DEFAULT 0,
			land_use   TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_field_inputs_user_id ON field_inputs(user_id);
		CREATE INDEX IF NOT EXISTS idx_field_inputs_created_at ON field_inputs(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating field_inputs table: %w", err)
	}

	// field_input_id is UNIQUE: one decision per input.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS decision_results (
			id                   TEXT PRIMARY KEY,
			field_input_id       TEXT NOT NULL UNIQUE REFERENCES field_inputs(id),
			recommended_measures TEXT NOT NULL DEFAULT '',
			confidence           REAL NOT NULL DEFAULT 0,
			explanation          TEXT NOT NULL DEFAULT '',
			source               TEXT NOT NULL DEFAULT '',
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating decision_results table: %w", err)
	}

	return nil
}

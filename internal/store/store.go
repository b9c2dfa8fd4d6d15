package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade journals written by older builds. Entry i moves a
// database from user_version i to i+1; schema.sql always holds the latest
// tables, so a fresh journal runs every step as a no-op.
var migrations = []string{
	// v1: NodeHistory looks changes up by reference.
	`CREATE INDEX IF NOT EXISTS idx_node_changes_ref ON node_changes(session_id, ref)`,
}

// schemaVersion is the user_version of an up-to-date journal.
var schemaVersion = len(migrations)

// journalParams are go-sqlite3 connection parameters. The journal keeps one
// connection, so they apply to every statement.
const journalParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

// Store is a SQLite session journal: sessions, the mutations applied to
// them and the node changes each settling pass produced.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating it when missing, and brings its
// schema up to date. Opening an existing journal again is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+journalParams)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// Appends are serialized by SQLite anyway; a single connection avoids
	// SQLITE_BUSY between our own writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection. A zero Store closes cleanly.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for ad hoc queries such as the CLI's listings.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates missing tables, then applies the migrations past the
// journal's user_version inside one transaction.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for v := version; v < schemaVersion; v++ {
		if _, err := tx.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return tx.Commit()
}

func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloaded (
	package_name    TEXT    NOT NULL,
	repository_id   INTEGER NOT NULL,
	version         TEXT    NOT NULL,
	cache_file_name TEXT    NOT NULL,
	changed         INTEGER NOT NULL,
	state_kind      TEXT    NOT NULL,
	state           BLOB    NOT NULL,
	PRIMARY KEY (package_name, repository_id)
);

CREATE INDEX IF NOT EXISTS idx_downloaded_kind ON downloaded(state_kind);

CREATE TABLE IF NOT EXISTS install_tasks (
	package_name    TEXT    PRIMARY KEY,
	name            TEXT    NOT NULL,
	version         TEXT    NOT NULL,
	repository_id   INTEGER NOT NULL,
	cache_file_name TEXT    NOT NULL,
	release_hash    TEXT    NOT NULL DEFAULT '',
	added           INTEGER NOT NULL
);
`

// Store is the SQLite backed record of downloads and pending install tasks
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

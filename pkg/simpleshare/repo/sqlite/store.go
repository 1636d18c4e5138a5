// Package sqlite implements simpleshare.Repository on an embedded SQLite
// database. Timestamps are stored as unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS share_keys (
  key        TEXT PRIMARY KEY,
  expires_at INTEGER NOT NULL,
  claimed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS share_references (
  seq        INTEGER PRIMARY KEY AUTOINCREMENT,
  key        TEXT NOT NULL,
  kind       TEXT NOT NULL,
  payload_id TEXT NOT NULL,
  expires_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS share_text_payloads (
  id         TEXT PRIMARY KEY,
  body       TEXT NOT NULL,
  expires_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS share_blob_payloads (
  id           TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  mime_type    TEXT NOT NULL,
  blob_handle  TEXT NOT NULL,
  size_bytes   INTEGER NOT NULL DEFAULT 0,
  expires_at   INTEGER NOT NULL,
  created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_share_references_key ON share_references(key, seq);
CREATE INDEX IF NOT EXISTS idx_share_references_expires ON share_references(expires_at);
CREATE INDEX IF NOT EXISTS idx_share_text_payloads_expires ON share_text_payloads(expires_at);
CREATE INDEX IF NOT EXISTS idx_share_blob_payloads_expires ON share_blob_payloads(expires_at);
CREATE INDEX IF NOT EXISTS idx_share_keys_expires ON share_keys(expires_at);
`

// Open opens the SQLite database at path and bootstraps the schema.
func Open(ctx context.Context, path string) (*Repository, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func configureDB(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

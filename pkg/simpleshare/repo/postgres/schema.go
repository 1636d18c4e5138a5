package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS share_keys (
  key        TEXT PRIMARY KEY,
  expires_at TIMESTAMPTZ NOT NULL,
  claimed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS share_references (
  seq        BIGSERIAL PRIMARY KEY,
  key        TEXT NOT NULL,
  kind       TEXT NOT NULL,
  payload_id TEXT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS share_text_payloads (
  id         TEXT PRIMARY KEY,
  body       TEXT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS share_blob_payloads (
  id           TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  mime_type    TEXT NOT NULL,
  blob_handle  TEXT NOT NULL,
  size_bytes   BIGINT NOT NULL DEFAULT 0,
  expires_at   TIMESTAMPTZ NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_share_references_key ON share_references(key, seq);
CREATE INDEX IF NOT EXISTS idx_share_references_expires ON share_references(expires_at);
CREATE INDEX IF NOT EXISTS idx_share_text_payloads_expires ON share_text_payloads(expires_at);
CREATE INDEX IF NOT EXISTS idx_share_blob_payloads_expires ON share_blob_payloads(expires_at);
CREATE INDEX IF NOT EXISTS idx_share_keys_expires ON share_keys(expires_at);
`

// EnsureSchema creates the tables and indexes when missing
func EnsureSchema(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Repository implements simpleshare.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func dbError(operation string, err error) error {
	return fmt.Errorf("sqlite error in %s: %w", operation, err)
}

// Key operations

func (r *Repository) ClaimKey(ctx context.Context, key string, expiresAt, now time.Time) error {
	query := `
		INSERT INTO share_keys (key, expires_at, claimed_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE
		SET expires_at = excluded.expires_at, claimed_at = excluded.claimed_at
		WHERE share_keys.expires_at < excluded.claimed_at`

	res, err := r.db.ExecContext(ctx, query, key, toNanos(expiresAt), toNanos(now))
	if err != nil {
		return dbError("claim key", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("claim key", err)
	}
	if n == 0 {
		return simpleshare.ErrKeyTaken
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM share_references WHERE key = ? AND expires_at < ?`, key, toNanos(now))
	if err != nil {
		return dbError("purge stale references", err)
	}
	return nil
}

func (r *Repository) ReleaseKey(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM share_keys WHERE key = ?`, key); err != nil {
		return dbError("release key", err)
	}
	return nil
}

// Payload operations

func (r *Repository) CreateText(ctx context.Context, payload *simpleshare.TextPayload) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO share_text_payloads (id, body, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		payload.ID, payload.Body, toNanos(payload.ExpiresAt), toNanos(payload.CreatedAt))
	if err != nil {
		return dbError("create text", err)
	}
	return nil
}

func (r *Repository) GetText(ctx context.Context, id string) (*simpleshare.TextPayload, error) {
	var p simpleshare.TextPayload
	var expiresAt, createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, body, expires_at, created_at FROM share_text_payloads WHERE id = ?`, id).
		Scan(&p.ID, &p.Body, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simpleshare.ErrPayloadNotFound
	}
	if err != nil {
		return nil, dbError("get text", err)
	}
	p.ExpiresAt = fromNanos(expiresAt)
	p.CreatedAt = fromNanos(createdAt)
	return &p, nil
}

func (r *Repository) DeleteText(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "share_text_payloads", id)
}

func (r *Repository) CreateBlob(ctx context.Context, payload *simpleshare.BlobPayload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO share_blob_payloads (
			id, display_name, mime_type, blob_handle, size_bytes, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payload.ID, payload.DisplayName, payload.MimeType, payload.BlobHandle,
		payload.SizeBytes, toNanos(payload.ExpiresAt), toNanos(payload.CreatedAt))
	if err != nil {
		return dbError("create blob", err)
	}
	return nil
}

func (r *Repository) GetBlob(ctx context.Context, id string) (*simpleshare.BlobPayload, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, mime_type, blob_handle, size_bytes, expires_at, created_at
		FROM share_blob_payloads WHERE id = ?`, id)

	p, err := scanBlob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simpleshare.ErrPayloadNotFound
	}
	if err != nil {
		return nil, dbError("get blob", err)
	}
	return p, nil
}

func (r *Repository) DeleteBlob(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "share_blob_payloads", id)
}

func (r *Repository) deleteByID(ctx context.Context, table, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return dbError("delete from "+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("delete from "+table, err)
	}
	if n == 0 {
		return simpleshare.ErrPayloadNotFound
	}
	return nil
}

// Reference operations

func (r *Repository) CreateReference(ctx context.Context, ref *simpleshare.Reference) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO share_references (key, kind, payload_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ref.Key, string(ref.Kind), ref.PayloadID, toNanos(ref.ExpiresAt), toNanos(ref.CreatedAt))
	if err != nil {
		return dbError("create reference", err)
	}
	return nil
}

func (r *Repository) References(ctx context.Context, key string) ([]*simpleshare.Reference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, kind, payload_id, expires_at, created_at
		FROM share_references WHERE key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, dbError("list references", err)
	}
	defer rows.Close()

	refs := []*simpleshare.Reference{}
	for rows.Next() {
		var ref simpleshare.Reference
		var kind string
		var expiresAt, createdAt int64
		if err := rows.Scan(&ref.Key, &kind, &ref.PayloadID, &expiresAt, &createdAt); err != nil {
			return nil, dbError("list references", err)
		}
		ref.Kind = simpleshare.Kind(kind)
		ref.ExpiresAt = fromNanos(expiresAt)
		ref.CreatedAt = fromNanos(createdAt)
		refs = append(refs, &ref)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list references", err)
	}
	return refs, nil
}

func (r *Repository) DeleteReferences(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM share_references WHERE key = ?`, key); err != nil {
		return dbError("delete references", err)
	}
	return nil
}

// Reclamation

func (r *Repository) ExpiredBlobs(ctx context.Context, before time.Time, afterID string, limit int) ([]*simpleshare.BlobPayload, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, mime_type, blob_handle, size_bytes, expires_at, created_at
		FROM share_blob_payloads WHERE expires_at < ? AND id > ?
		ORDER BY id LIMIT ?`, toNanos(before), afterID, limit)
	if err != nil {
		return nil, dbError("list expired blobs", err)
	}
	defer rows.Close()

	var result []*simpleshare.BlobPayload
	for rows.Next() {
		p, err := scanBlob(rows)
		if err != nil {
			return nil, dbError("list expired blobs", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list expired blobs", err)
	}
	return result, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dbError("delete expired", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"share_text_payloads", "share_references", "share_keys"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at < ?", toNanos(before))
		if err != nil {
			return 0, dbError("delete expired "+table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, dbError("delete expired "+table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, dbError("delete expired", err)
	}
	return total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlob(row scanner) (*simpleshare.BlobPayload, error) {
	var p simpleshare.BlobPayload
	var expiresAt, createdAt int64
	if err := row.Scan(&p.ID, &p.DisplayName, &p.MimeType, &p.BlobHandle, &p.SizeBytes, &expiresAt, &createdAt); err != nil {
		return nil, err
	}
	p.ExpiresAt = fromNanos(expiresAt)
	p.CreatedAt = fromNanos(createdAt)
	return &p, nil
}

var _ simpleshare.Repository = (*Repository)(nil)

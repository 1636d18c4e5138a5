package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpleshare.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - run EnsureSchema")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Key operations

func (r *Repository) ClaimKey(ctx context.Context, key string, expiresAt, now time.Time) error {
	query := `
		INSERT INTO share_keys (key, expires_at, claimed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET expires_at = EXCLUDED.expires_at, claimed_at = EXCLUDED.claimed_at
		WHERE share_keys.expires_at < EXCLUDED.claimed_at`

	tag, err := r.db.Exec(ctx, query, key, expiresAt, now)
	if err != nil {
		return r.handlePostgresError("claim key", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleshare.ErrKeyTaken
	}

	// Leftover rows of a bundle that expired but was never reaped
	_, err = r.db.Exec(ctx, `DELETE FROM share_references WHERE key = $1 AND expires_at < $2`, key, now)
	if err != nil {
		return r.handlePostgresError("purge stale references", err)
	}
	return nil
}

func (r *Repository) ReleaseKey(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM share_keys WHERE key = $1`, key)
	if err != nil {
		return r.handlePostgresError("release key", err)
	}
	return nil
}

// Payload operations

func (r *Repository) CreateText(ctx context.Context, payload *simpleshare.TextPayload) error {
	query := `
		INSERT INTO share_text_payloads (id, body, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, payload.ID, payload.Body, payload.ExpiresAt, payload.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create text", err)
	}
	return nil
}

func (r *Repository) GetText(ctx context.Context, id string) (*simpleshare.TextPayload, error) {
	query := `SELECT id, body, expires_at, created_at FROM share_text_payloads WHERE id = $1`

	var p simpleshare.TextPayload
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Body, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleshare.ErrPayloadNotFound
		}
		return nil, r.handlePostgresError("get text", err)
	}
	return &p, nil
}

func (r *Repository) DeleteText(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM share_text_payloads WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete text", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleshare.ErrPayloadNotFound
	}
	return nil
}

func (r *Repository) CreateBlob(ctx context.Context, payload *simpleshare.BlobPayload) error {
	query := `
		INSERT INTO share_blob_payloads (
			id, display_name, mime_type, blob_handle, size_bytes, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		payload.ID, payload.DisplayName, payload.MimeType, payload.BlobHandle,
		payload.SizeBytes, payload.ExpiresAt, payload.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create blob", err)
	}
	return nil
}

func (r *Repository) GetBlob(ctx context.Context, id string) (*simpleshare.BlobPayload, error) {
	query := `
		SELECT id, display_name, mime_type, blob_handle, size_bytes, expires_at, created_at
		FROM share_blob_payloads WHERE id = $1`

	p, err := scanBlob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleshare.ErrPayloadNotFound
		}
		return nil, r.handlePostgresError("get blob", err)
	}
	return p, nil
}

func (r *Repository) DeleteBlob(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM share_blob_payloads WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete blob", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleshare.ErrPayloadNotFound
	}
	return nil
}

// Reference operations

func (r *Repository) CreateReference(ctx context.Context, ref *simpleshare.Reference) error {
	query := `
		INSERT INTO share_references (key, kind, payload_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, ref.Key, string(ref.Kind), ref.PayloadID, ref.ExpiresAt, ref.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create reference", err)
	}
	return nil
}

func (r *Repository) References(ctx context.Context, key string) ([]*simpleshare.Reference, error) {
	query := `
		SELECT key, kind, payload_id, expires_at, created_at
		FROM share_references WHERE key = $1 ORDER BY seq`

	rows, err := r.db.Query(ctx, query, key)
	if err != nil {
		return nil, r.handlePostgresError("list references", err)
	}
	defer rows.Close()

	refs := []*simpleshare.Reference{}
	for rows.Next() {
		var ref simpleshare.Reference
		var kind string
		if err := rows.Scan(&ref.Key, &kind, &ref.PayloadID, &ref.ExpiresAt, &ref.CreatedAt); err != nil {
			return nil, err
		}
		ref.Kind = simpleshare.Kind(kind)
		refs = append(refs, &ref)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list references", err)
	}
	return refs, nil
}

func (r *Repository) DeleteReferences(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM share_references WHERE key = $1`, key)
	if err != nil {
		return r.handlePostgresError("delete references", err)
	}
	return nil
}

// Reclamation

func (r *Repository) ExpiredBlobs(ctx context.Context, before time.Time, afterID string, limit int) ([]*simpleshare.BlobPayload, error) {
	query := `
		SELECT id, display_name, mime_type, blob_handle, size_bytes, expires_at, created_at
		FROM share_blob_payloads WHERE expires_at < $1 AND id > $2
		ORDER BY id LIMIT $3`

	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.Query(ctx, query, before, afterID, limit)
	if err != nil {
		return nil, r.handlePostgresError("list expired blobs", err)
	}
	defer rows.Close()

	var result []*simpleshare.BlobPayload
	for rows.Next() {
		p, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list expired blobs", err)
	}
	return result, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tables := []string{"share_text_payloads", "share_references", "share_keys"}

	var total int64
	for _, table := range tables {
		tag, err := r.db.Exec(ctx, "DELETE FROM "+table+" WHERE expires_at < $1", before)
		if err != nil {
			return total, r.handlePostgresError("delete expired "+table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func scanBlob(row pgx.Row) (*simpleshare.BlobPayload, error) {
	var p simpleshare.BlobPayload
	err := row.Scan(&p.ID, &p.DisplayName, &p.MimeType, &p.BlobHandle, &p.SizeBytes, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ simpleshare.Repository = (*Repository)(nil)

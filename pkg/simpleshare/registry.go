package simpleshare

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentRegistry binds payloads to keys and looks bundles up by key.
type ContentRegistry struct {
	repo Repository
	now  func() time.Time
}

// NewContentRegistry creates a registry over repo.
func NewContentRegistry(repo Repository) *ContentRegistry {
	return &ContentRegistry{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// BindText stores body inline and references it from key.
func (r *ContentRegistry) BindText(ctx context.Context, key, body string, expiresAt time.Time) (*TextPayload, error) {
	now := r.now()
	payload := &TextPayload{
		ID:        uuid.New().String(),
		Body:      body,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := r.repo.CreateText(ctx, payload); err != nil {
		return nil, &KeyError{Key: key, Op: "bind_text", Err: err}
	}

	ref := &Reference{
		Key:       key,
		Kind:      KindText,
		PayloadID: payload.ID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := r.repo.CreateReference(ctx, ref); err != nil {
		// An unreferenced payload would only wait for the reaper.
		_ = r.repo.DeleteText(ctx, payload.ID)
		return nil, &KeyError{Key: key, Op: "bind_text", Err: err}
	}
	return payload, nil
}

// BindBlob records payload metadata and references it from key. The blob
// bytes must already be stored under payload.BlobHandle.
func (r *ContentRegistry) BindBlob(ctx context.Context, key string, kind Kind, payload *BlobPayload, expiresAt time.Time) error {
	if !kind.IsBlob() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("%q is not a blob kind", kind)}
	}

	now := r.now()
	if payload.ID == "" {
		payload.ID = uuid.New().String()
	}
	payload.ExpiresAt = expiresAt
	payload.CreatedAt = now

	if err := r.repo.CreateBlob(ctx, payload); err != nil {
		return &KeyError{Key: key, Op: "bind_blob", Err: err}
	}

	ref := &Reference{
		Key:       key,
		Kind:      kind,
		PayloadID: payload.ID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := r.repo.CreateReference(ctx, ref); err != nil {
		_ = r.repo.DeleteBlob(ctx, payload.ID)
		return &KeyError{Key: key, Op: "bind_blob", Err: err}
	}
	return nil
}

// ReferencesFor resolves raw to a stored key and returns its references in
// insertion order. The canonical 4-digit form is tried before the verbatim
// legacy form. Returns ErrNotFound when no candidate has rows.
func (r *ContentRegistry) ReferencesFor(ctx context.Context, raw string) (string, []*Reference, error) {
	candidates := LookupCandidates(raw)
	for _, key := range candidates {
		refs, err := r.repo.References(ctx, key)
		if err != nil {
			return "", nil, &KeyError{Key: key, Op: "lookup", Err: err}
		}
		if len(refs) > 0 {
			return key, refs, nil
		}
	}
	return "", nil, ErrNotFound
}

// DeleteAll removes every reference row of key and releases the key.
func (r *ContentRegistry) DeleteAll(ctx context.Context, key string) error {
	if err := r.repo.DeleteReferences(ctx, key); err != nil {
		return &KeyError{Key: key, Op: "delete_references", Err: err}
	}
	if err := r.repo.ReleaseKey(ctx, key); err != nil {
		return &KeyError{Key: key, Op: "release", Err: err}
	}
	return nil
}

// Release drops the key binding only. Used when a create stored nothing.
func (r *ContentRegistry) Release(ctx context.Context, key string) error {
	if err := r.repo.ReleaseKey(ctx, key); err != nil {
		return &KeyError{Key: key, Op: "release", Err: err}
	}
	return nil
}

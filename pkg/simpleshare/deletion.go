package simpleshare

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DeletionCoordinator removes a live bundle: blob bytes, then payload rows,
// then the key's reference rows.
type DeletionCoordinator struct {
	registry *ContentRegistry
	repo     Repository
	blobs    BlobStore
	now      func() time.Time
	logger   *slog.Logger
}

// NewDeletionCoordinator creates a coordinator.
func NewDeletionCoordinator(registry *ContentRegistry, repo Repository, blobs BlobStore) *DeletionCoordinator {
	return &DeletionCoordinator{
		registry: registry,
		repo:     repo,
		blobs:    blobs,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}
}

// Delete removes the bundle addressed by raw and returns the stored key it
// resolved to. ErrNotFound when nothing is bound, ErrForbidden once expired.
// Blob deletion is best effort.
func (d *DeletionCoordinator) Delete(ctx context.Context, raw string) (string, error) {
	key, refs, err := d.registry.ReferencesFor(ctx, raw)
	if err != nil {
		return "", err
	}

	if d.now().After(refs[0].ExpiresAt) {
		return "", ErrForbidden
	}

	for _, ref := range refs {
		if err := d.deletePayload(ctx, ref); err != nil {
			return "", err
		}
	}

	if err := d.registry.DeleteAll(ctx, key); err != nil {
		return "", err
	}
	return key, nil
}

func (d *DeletionCoordinator) deletePayload(ctx context.Context, ref *Reference) error {
	switch ref.Kind {
	case KindText:
		if err := d.repo.DeleteText(ctx, ref.PayloadID); err != nil && !errors.Is(err, ErrPayloadNotFound) {
			return &KeyError{Key: ref.Key, Op: "delete_text", Err: err}
		}

	case KindImage, KindFile:
		blob, err := d.repo.GetBlob(ctx, ref.PayloadID)
		if errors.Is(err, ErrPayloadNotFound) {
			return nil
		}
		if err != nil {
			return &KeyError{Key: ref.Key, Op: "get_blob", Err: err}
		}

		if err := d.blobs.Delete(ctx, blob.BlobHandle); err != nil {
			// The row stays behind for the reaper once it expires.
			d.logger.Warn("failed to delete blob, continuing",
				"key", ref.Key, "handle", blob.BlobHandle, "error", err)
			return nil
		}

		if err := d.repo.DeleteBlob(ctx, blob.ID); err != nil && !errors.Is(err, ErrPayloadNotFound) {
			return &KeyError{Key: ref.Key, Op: "delete_blob", Err: err}
		}
	}
	return nil
}

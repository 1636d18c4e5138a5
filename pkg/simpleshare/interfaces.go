package simpleshare

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for binary storage backends.
// Handles are opaque and generated by the backend.
type BlobStore interface {
	// Put streams r into the backend and returns the handle addressing it
	Put(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error)

	// Get opens the blob for reading. Returns ErrBlobNotFound when the handle is unknown.
	Get(ctx context.Context, handle string) (io.ReadCloser, *BlobInfo, error)

	// Delete removes the blob. Deleting an unknown handle returns nil.
	Delete(ctx context.Context, handle string) error
}

// Repository defines the interface for key, reference and payload persistence
type Repository interface {
	// ClaimKey atomically binds key until expiresAt when no live binding
	// exists at now. Returns ErrKeyTaken otherwise. A stale binding (expired
	// at now) is taken over and its leftover reference rows are purged.
	ClaimKey(ctx context.Context, key string, expiresAt, now time.Time) error
	// ReleaseKey drops the key binding regardless of expiry
	ReleaseKey(ctx context.Context, key string) error

	// Payload operations
	CreateText(ctx context.Context, payload *TextPayload) error
	GetText(ctx context.Context, id string) (*TextPayload, error)
	DeleteText(ctx context.Context, id string) error
	CreateBlob(ctx context.Context, payload *BlobPayload) error
	GetBlob(ctx context.Context, id string) (*BlobPayload, error)
	DeleteBlob(ctx context.Context, id string) error

	// Reference operations
	CreateReference(ctx context.Context, ref *Reference) error
	// References returns the rows for key in insertion order; empty when none
	References(ctx context.Context, key string) ([]*Reference, error)
	DeleteReferences(ctx context.Context, key string) error

	// Reclamation
	// ExpiredBlobs lists blob payloads that expired before before, ordered by
	// ID and starting after afterID ("" for the first page)
	ExpiredBlobs(ctx context.Context, before time.Time, afterID string, limit int) ([]*BlobPayload, error)
	// DeleteExpired removes text, reference and key rows that expired before
	// before, and reports how many went away. Blob payload rows are kept: each
	// is the only record of its handle and goes with DeleteBlob once the bytes
	// are gone.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// URLStrategy derives a download URL from a blob handle. The result must be
// a pure function of its inputs.
type URLStrategy interface {
	GenerateDownloadURL(ctx context.Context, handle string, fileName string) (string, error)
}

// EventSink receives bundle lifecycle events. Errors are logged by the
// service and never fail the operation.
type EventSink interface {
	// BundleCreated is fired after a create stored at least one item
	BundleCreated(ctx context.Context, result *CreateResult) error

	// BundleRetrieved is fired after a successful retrieval
	BundleRetrieved(ctx context.Context, bundle *Bundle) error

	// BundleDeleted is fired after a successful deletion
	BundleDeleted(ctx context.Context, key string) error
}

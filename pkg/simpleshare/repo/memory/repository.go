package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Repository implements simpleshare.Repository using in-memory storage
type Repository struct {
	mu    sync.RWMutex
	keys  map[string]time.Time // key -> expires_at of the live claim
	refs  map[string][]*simpleshare.Reference
	texts map[string]*simpleshare.TextPayload
	blobs map[string]*simpleshare.BlobPayload
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		keys:  make(map[string]time.Time),
		refs:  make(map[string][]*simpleshare.Reference),
		texts: make(map[string]*simpleshare.TextPayload),
		blobs: make(map[string]*simpleshare.BlobPayload),
	}
}

// Key operations

func (r *Repository) ClaimKey(ctx context.Context, key string, expiresAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if exp, ok := r.keys[key]; ok && !exp.Before(now) {
		return simpleshare.ErrKeyTaken
	}
	r.keys[key] = expiresAt

	// Leftover rows of a bundle that expired but was never reaped
	kept := r.refs[key][:0]
	for _, ref := range r.refs[key] {
		if !ref.ExpiresAt.Before(now) {
			kept = append(kept, ref)
		}
	}
	if len(kept) == 0 {
		delete(r.refs, key)
	} else {
		r.refs[key] = kept
	}
	return nil
}

func (r *Repository) ReleaseKey(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.keys, key)
	return nil
}

// Payload operations

func (r *Repository) CreateText(ctx context.Context, payload *simpleshare.TextPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payloadCopy := *payload
	r.texts[payload.ID] = &payloadCopy
	return nil
}

func (r *Repository) GetText(ctx context.Context, id string) (*simpleshare.TextPayload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payload, exists := r.texts[id]
	if !exists {
		return nil, simpleshare.ErrPayloadNotFound
	}
	payloadCopy := *payload
	return &payloadCopy, nil
}

func (r *Repository) DeleteText(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.texts[id]; !exists {
		return simpleshare.ErrPayloadNotFound
	}
	delete(r.texts, id)
	return nil
}

func (r *Repository) CreateBlob(ctx context.Context, payload *simpleshare.BlobPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payloadCopy := *payload
	r.blobs[payload.ID] = &payloadCopy
	return nil
}

func (r *Repository) GetBlob(ctx context.Context, id string) (*simpleshare.BlobPayload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payload, exists := r.blobs[id]
	if !exists {
		return nil, simpleshare.ErrPayloadNotFound
	}
	payloadCopy := *payload
	return &payloadCopy, nil
}

func (r *Repository) DeleteBlob(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blobs[id]; !exists {
		return simpleshare.ErrPayloadNotFound
	}
	delete(r.blobs, id)
	return nil
}

// Reference operations

func (r *Repository) CreateReference(ctx context.Context, ref *simpleshare.Reference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	refCopy := *ref
	r.refs[ref.Key] = append(r.refs[ref.Key], &refCopy)
	return nil
}

func (r *Repository) References(ctx context.Context, key string) ([]*simpleshare.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simpleshare.Reference, 0, len(r.refs[key]))
	for _, ref := range r.refs[key] {
		refCopy := *ref
		result = append(result, &refCopy)
	}
	return result, nil
}

func (r *Repository) DeleteReferences(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.refs, key)
	return nil
}

// Reclamation

func (r *Repository) ExpiredBlobs(ctx context.Context, before time.Time, afterID string, limit int) ([]*simpleshare.BlobPayload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simpleshare.BlobPayload
	for _, payload := range r.blobs {
		if payload.ExpiresAt.Before(before) && payload.ID > afterID {
			payloadCopy := *payload
			result = append(result, &payloadCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, p := range r.texts {
		if p.ExpiresAt.Before(before) {
			delete(r.texts, id)
			n++
		}
	}
	for key, refs := range r.refs {
		kept := refs[:0]
		for _, ref := range refs {
			if ref.ExpiresAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, ref)
		}
		if len(kept) == 0 {
			delete(r.refs, key)
		} else {
			r.refs[key] = kept
		}
	}
	for key, exp := range r.keys {
		if exp.Before(before) {
			delete(r.keys, key)
			n++
		}
	}
	return n, nil
}

var _ simpleshare.Repository = (*Repository)(nil)

package simpleshare

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetrievalAssembler resolves the references of a key into a Bundle.
type RetrievalAssembler struct {
	registry *ContentRegistry
	repo     Repository
	urls     URLStrategy
	now      func() time.Time
	logger   *slog.Logger
}

// NewRetrievalAssembler creates an assembler.
func NewRetrievalAssembler(registry *ContentRegistry, repo Repository, urls URLStrategy) *RetrievalAssembler {
	return &RetrievalAssembler{
		registry: registry,
		repo:     repo,
		urls:     urls,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}
}

// Assemble returns the live content of raw. ErrNotFound when the key has no
// references, ErrExpired when the bundle's expiry has passed or none of its
// payloads could be resolved.
func (a *RetrievalAssembler) Assemble(ctx context.Context, raw string) (*Bundle, error) {
	key, refs, err := a.registry.ReferencesFor(ctx, raw)
	if err != nil {
		return nil, err
	}

	now := a.now()
	expiresAt := refs[0].ExpiresAt
	if now.After(expiresAt) {
		return nil, ErrExpired
	}

	bundle := &Bundle{
		Key:       key,
		Kinds:     []Kind{},
		Images:    []BlobView{},
		Files:     []BlobView{},
		ExpiresAt: expiresAt,
	}
	seen := make(map[Kind]bool, 3)

	for _, ref := range refs {
		ok, err := a.resolve(ctx, bundle, ref, now)
		if err != nil {
			return nil, err
		}
		if ok && !seen[ref.Kind] {
			seen[ref.Kind] = true
			bundle.Kinds = append(bundle.Kinds, ref.Kind)
		}
	}

	if bundle.IsEmpty() {
		return nil, ErrExpired
	}
	return bundle, nil
}

// resolve adds the payload of ref to bundle. It reports false when the
// payload is gone or individually expired.
func (a *RetrievalAssembler) resolve(ctx context.Context, bundle *Bundle, ref *Reference, now time.Time) (bool, error) {
	switch ref.Kind {
	case KindText:
		text, err := a.repo.GetText(ctx, ref.PayloadID)
		if errors.Is(err, ErrPayloadNotFound) {
			return false, nil
		}
		if err != nil {
			return false, &KeyError{Key: ref.Key, Op: "get_text", Err: err}
		}
		if now.After(text.ExpiresAt) {
			return false, nil
		}
		body := text.Body
		bundle.Text = &body
		return true, nil

	case KindImage, KindFile:
		blob, err := a.repo.GetBlob(ctx, ref.PayloadID)
		if errors.Is(err, ErrPayloadNotFound) {
			return false, nil
		}
		if err != nil {
			return false, &KeyError{Key: ref.Key, Op: "get_blob", Err: err}
		}
		if now.After(blob.ExpiresAt) {
			return false, nil
		}
		url, err := a.urls.GenerateDownloadURL(ctx, blob.BlobHandle, blob.DisplayName)
		if err != nil {
			return false, &KeyError{Key: ref.Key, Op: "download_url", Err: err}
		}
		view := BlobView{
			ID:          blob.BlobHandle,
			Name:        blob.DisplayName,
			MimeType:    blob.MimeType,
			DownloadURL: url,
		}
		if ref.Kind == KindImage {
			bundle.Images = append(bundle.Images, view)
		} else {
			bundle.Files = append(bundle.Files, view)
		}
		return true, nil

	default:
		a.logger.Warn("skipping reference with unknown kind", "key", ref.Key, "kind", ref.Kind)
		return false, nil
	}
}

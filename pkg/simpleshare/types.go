package simpleshare

import (
	"io"
	"time"
)

// DefaultTTL is the lifetime applied to every bundle.
const DefaultTTL = 2 * time.Hour

// DefaultExpireIn is the human label reported alongside a new key.
const DefaultExpireIn = "2 hours"

// Kind is the type of a single content item inside a bundle.
type Kind string

// Kind constants (typed).
const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}

// IsBlob reports whether payloads of this kind live in the BlobStore.
func (k Kind) IsBlob() bool {
	return k == KindImage || k == KindFile
}

// Reference links a key to one payload. All references written by one
// submission share the same ExpiresAt.
type Reference struct {
	Key       string    `json:"key"`
	Kind      Kind      `json:"kind"`
	PayloadID string    `json:"payload_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TextPayload is inline text content.
type TextPayload struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// BlobPayload is the metadata row for an image or file. The bytes live only
// in the BlobStore, addressed by BlobHandle.
type BlobPayload struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	MimeType    string    `json:"mime_type"`
	BlobHandle  string    `json:"blob_handle"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobInfo describes a stored blob as reported by a BlobStore.
type BlobInfo struct {
	Handle   string
	Name     string
	MimeType string
	Length   int64
}

// Upload is one binary item of a create request.
type Upload struct {
	Name     string
	MimeType string
	// Size is the declared size in bytes; zero when unknown.
	Size   int64
	Reader io.Reader
}

// CreateRequest is the input of Service.Create.
type CreateRequest struct {
	Text   string
	Images []Upload
	Files  []Upload
}

// ItemOutcome records what happened to one submitted item.
type ItemOutcome struct {
	Kind      Kind   `json:"kind"`
	Name      string `json:"name,omitempty"`
	PayloadID string `json:"payload_id,omitempty"`
	Stored    bool   `json:"stored"`
	Error     string `json:"error,omitempty"`
}

// CreateResult is returned by Service.Create. Items is the per-item manifest;
// a partially stored bundle still reports its key.
type CreateResult struct {
	Key       string        `json:"key"`
	ExpiresAt time.Time     `json:"expires_at"`
	ExpireIn  string        `json:"expire_in"`
	Items     []ItemOutcome `json:"items"`
}

// StoredCount returns the number of items that persisted.
func (r *CreateResult) StoredCount() int {
	n := 0
	for _, it := range r.Items {
		if it.Stored {
			n++
		}
	}
	return n
}

// BlobView is the retrieval view of an image or file.
type BlobView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"type"`
	DownloadURL string `json:"fileUrl"`
}

// Bundle is the assembled, expiry-filtered content for a key.
type Bundle struct {
	Key       string     `json:"key"`
	Kinds     []Kind     `json:"type"`
	Text      *string    `json:"text"`
	Images    []BlobView `json:"images"`
	Files     []BlobView `json:"files"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// IsEmpty reports whether no payload resolved.
func (b *Bundle) IsEmpty() bool {
	return b.Text == nil && len(b.Images) == 0 && len(b.Files) == 0
}

// Download is a streamed blob with its metadata. Callers must close Body.
type Download struct {
	Body io.ReadCloser
	BlobInfo
}

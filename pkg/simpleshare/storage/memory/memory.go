package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

type object struct {
	data     []byte
	name     string
	mimeType string
}

// Backend is an in-memory implementation of the simpleshare.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// Put reads r fully and stores it under a new handle
func (b *Backend) Put(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	handle := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[handle] = &object{data: data, name: displayName, mimeType: mimeType}
	return handle, nil
}

// Get returns a reader over a copy-free view of the stored bytes
func (b *Backend) Get(ctx context.Context, handle string) (io.ReadCloser, *simpleshare.BlobInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[handle]
	if !exists {
		return nil, nil, simpleshare.ErrBlobNotFound
	}

	info := &simpleshare.BlobInfo{
		Handle:   handle,
		Name:     obj.name,
		MimeType: obj.mimeType,
		Length:   int64(len(obj.data)),
	}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, handle)
	return nil
}

// Len returns the number of stored blobs
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

var _ simpleshare.BlobStore = (*Backend)(nil)

package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
)

const metaSuffix = ".meta.json"

// Backend is a filesystem implementation of the simpleshare.BlobStore interface.
// Each blob is a data file plus a JSON sidecar holding its name and MIME type.
type Backend struct {
	baseDir string
	keys    objectkey.Generator
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
	// KeyGenerator lays out files under BaseDir. Defaults to sharded.
	KeyGenerator objectkey.Generator
}

type sidecar struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	keys := config.KeyGenerator
	if keys == nil {
		keys = objectkey.NewShardedGenerator("")
	}

	return &Backend{
		baseDir: config.BaseDir,
		keys:    keys,
	}, nil
}

func (b *Backend) path(handle string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(b.keys.ObjectKey(handle)))
}

// Put streams r to a temp file and moves it into place
func (b *Backend) Put(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error) {
	handle := objectkey.NewHandle()
	filePath := b.path(handle)

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	meta, err := json.Marshal(sidecar{Name: displayName, MimeType: mimeType})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filePath+metaSuffix, meta, 0644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(filePath + metaSuffix)
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	return handle, nil
}

// Get opens the data file of handle
func (b *Backend) Get(ctx context.Context, handle string) (io.ReadCloser, *simpleshare.BlobInfo, error) {
	if !objectkey.ValidHandle(handle) {
		return nil, nil, simpleshare.ErrBlobNotFound
	}
	filePath := b.path(handle)

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, nil, simpleshare.ErrBlobNotFound
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to get file info: %w", err)
	}

	info := &simpleshare.BlobInfo{
		Handle:   handle,
		MimeType: "application/octet-stream",
		Length:   stat.Size(),
	}
	if raw, err := os.ReadFile(filePath + metaSuffix); err == nil {
		var meta sidecar
		if json.Unmarshal(raw, &meta) == nil {
			info.Name = meta.Name
			if meta.MimeType != "" {
				info.MimeType = meta.MimeType
			}
		}
	}

	return file, info, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, handle string) error {
	if !objectkey.ValidHandle(handle) {
		return nil
	}
	filePath := b.path(handle)

	for _, p := range []string{filePath, filePath + metaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !isWithin(b.baseDir, dir) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

func isWithin(base, dir string) bool {
	return strings.HasPrefix(dir, base+string(filepath.Separator))
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ simpleshare.BlobStore = (*Backend)(nil)

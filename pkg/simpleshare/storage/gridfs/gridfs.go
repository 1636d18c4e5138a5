// Package gridfs stores blobs in MongoDB GridFS. Handles are the hex form of
// the GridFS file ObjectID.
package gridfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultBucket is the GridFS bucket name used when none is configured
const DefaultBucket = "uploads"

// Backend is a GridFS implementation of the simpleshare.BlobStore interface
type Backend struct {
	bucket *gridfs.Bucket
}

// New opens the named bucket in db
func New(db *mongo.Database, bucketName string) (*Backend, error) {
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}
	return &Backend{bucket: bucket}, nil
}

// Put streams r into a new GridFS file
func (b *Backend) Put(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: mimeType}})

	id, err := b.bucket.UploadFromStream(displayName, &ctxReader{ctx: ctx, r: r}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to upload to gridfs: %w", err)
	}
	return id.Hex(), nil
}

// Get opens a download stream for handle
func (b *Backend) Get(ctx context.Context, handle string) (io.ReadCloser, *simpleshare.BlobInfo, error) {
	id, err := primitive.ObjectIDFromHex(handle)
	if err != nil {
		return nil, nil, simpleshare.ErrBlobNotFound
	}

	stream, err := b.bucket.OpenDownloadStream(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, nil, simpleshare.ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open gridfs stream: %w", err)
	}

	file := stream.GetFile()
	info := &simpleshare.BlobInfo{
		Handle:   handle,
		Name:     file.Name,
		MimeType: "application/octet-stream",
		Length:   file.Length,
	}
	if len(file.Metadata) > 0 {
		if ct, ok := file.Metadata.Lookup("contentType").StringValueOK(); ok && ct != "" {
			info.MimeType = ct
		}
	}

	return stream, info, nil
}

// Delete removes the file and its chunks. Unknown handles are ignored.
func (b *Backend) Delete(ctx context.Context, handle string) error {
	id, err := primitive.ObjectIDFromHex(handle)
	if err != nil {
		return nil
	}

	err = b.bucket.DeleteContext(ctx, id)
	if err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("failed to delete from gridfs: %w", err)
	}
	return nil
}

// ctxReader stops an upload once ctx is done
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

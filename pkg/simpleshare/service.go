package simpleshare

import (
	"context"
)

// Service defines the main interface for the simple-share library
type Service interface {
	// Create validates req, allocates a key and stores every item under it.
	// Items that fail to store are reported in the manifest and skipped.
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// Retrieve returns the live bundle for a 1-4 digit or legacy key
	Retrieve(ctx context.Context, key string) (*Bundle, error)

	// Delete removes a live bundle
	Delete(ctx context.Context, key string) error

	// Download streams a stored blob by handle
	Download(ctx context.Context, handle string) (*Download, error)
}

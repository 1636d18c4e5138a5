// Package reaper physically removes expired bundles. Reads are already gated
// on expiry, so reaping only reclaims storage.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Reaper deletes expired blob bytes, then every expired row.
type Reaper struct {
	repo   simpleshare.Repository
	blobs  simpleshare.BlobStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Reaper instance.
func New(repo simpleshare.Repository, blobs simpleshare.BlobStore, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		repo:   repo,
		blobs:  blobs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Options configures one reap pass.
type Options struct {
	// BatchSize controls how many expired blobs to query at once (default: 100)
	BatchSize int

	// Grace delays reaping past expiry, leaving in-flight downloads time to finish
	Grace time.Duration

	// DryRun counts the expired blobs and deletes nothing
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed int64)
}

// Result contains statistics about a reap pass.
type Result struct {
	// BlobsFound is the number of expired blob payloads seen
	BlobsFound int64

	// BlobsDeleted is the number of blobs whose bytes and row were removed
	BlobsDeleted int64

	// BlobsFailed is the number of blobs whose bytes could not be removed
	BlobsFailed int64

	// RowsDeleted is the number of expired text, reference and key rows
	// removed at the end. Blob rows are counted in BlobsDeleted.
	RowsDeleted int64

	// FailedHandles lists blob handles left behind in the backend
	FailedHandles []string
}

// Reap runs a single pass. A blob that cannot be deleted is recorded and
// skipped; its row stays so a later pass retries it.
func (r *Reaper) Reap(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	before := r.now().Add(-opts.Grace)

	// Failed blobs keep their rows, so paging is by ID rather than by
	// re-reading the first page.
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := r.repo.ExpiredBlobs(ctx, before, cursor, opts.BatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list expired blobs: %w", err)
		}

		for _, payload := range batch {
			cursor = payload.ID
			result.BlobsFound++

			if opts.DryRun {
				continue
			}
			if err := r.reapBlob(ctx, payload); err != nil {
				result.BlobsFailed++
				result.FailedHandles = append(result.FailedHandles, payload.BlobHandle)
				r.logger.Warn("failed to reap blob", "payload_id", payload.ID, "handle", payload.BlobHandle, "error", err)
				continue
			}
			result.BlobsDeleted++
		}

		if opts.OnProgress != nil && len(batch) > 0 {
			opts.OnProgress(result.BlobsFound)
		}

		if len(batch) < opts.BatchSize {
			break
		}
	}

	if opts.DryRun {
		return result, nil
	}

	n, err := r.repo.DeleteExpired(ctx, before)
	if err != nil {
		return result, fmt.Errorf("failed to delete expired rows: %w", err)
	}
	result.RowsDeleted = n

	r.logger.Info("reap finished",
		"blobs_deleted", result.BlobsDeleted,
		"blobs_failed", result.BlobsFailed,
		"rows_deleted", result.RowsDeleted)
	return result, nil
}

func (r *Reaper) reapBlob(ctx context.Context, payload *simpleshare.BlobPayload) error {
	if err := r.blobs.Delete(ctx, payload.BlobHandle); err != nil {
		return err
	}
	if err := r.repo.DeleteBlob(ctx, payload.ID); err != nil && !errors.Is(err, simpleshare.ErrPayloadNotFound) {
		return err
	}
	return nil
}

// Run reaps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration, opts Options) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Reap(ctx, opts); err != nil && ctx.Err() == nil {
			r.logger.Error("reap failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

package reaper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/memory"
	memstore "github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
)

type failingDeletes struct {
	*memstore.Backend
	fail map[string]bool
}

func (f *failingDeletes) Delete(ctx context.Context, handle string) error {
	if f.fail[handle] {
		return errors.New("backend unavailable")
	}
	return f.Backend.Delete(ctx, handle)
}

func seedBlob(t *testing.T, repo *memory.Repository, blobs simpleshare.BlobStore, key, id string, exp time.Time) string {
	t.Helper()
	ctx := context.Background()

	handle, err := blobs.Put(ctx, strings.NewReader("data-"+id), id+".bin", "application/octet-stream")
	require.NoError(t, err)
	require.NoError(t, repo.CreateBlob(ctx, &simpleshare.BlobPayload{ID: id, DisplayName: id, BlobHandle: handle, ExpiresAt: exp}))
	require.NoError(t, repo.CreateReference(ctx, &simpleshare.Reference{Key: key, Kind: simpleshare.KindFile, PayloadID: id, ExpiresAt: exp}))
	return handle
}

func TestReap(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()
	blobs := memstore.New()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		seedBlob(t, repo, blobs, "0001", id, now.Add(-time.Hour))
	}
	liveHandle := seedBlob(t, repo, blobs, "0002", "live", now.Add(time.Hour))
	require.NoError(t, repo.CreateText(ctx, &simpleshare.TextPayload{ID: "t", Body: "old", ExpiresAt: now.Add(-time.Hour)}))

	r := New(repo, blobs, nil)
	r.now = func() time.Time { return now }

	var progress []int64
	result, err := r.Reap(ctx, Options{BatchSize: 2, OnProgress: func(n int64) { progress = append(progress, n) }})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.BlobsFound)
	assert.Equal(t, int64(5), result.BlobsDeleted)
	assert.Zero(t, result.BlobsFailed)
	// text + 5 references
	assert.Equal(t, int64(6), result.RowsDeleted)
	assert.Equal(t, []int64{2, 4, 5}, progress)

	assert.Equal(t, 1, blobs.Len())
	_, _, err = blobs.Get(ctx, liveHandle)
	assert.NoError(t, err)

	refs, err := repo.References(ctx, "0001")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestReap_DryRun(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()
	blobs := memstore.New()
	seedBlob(t, repo, blobs, "0001", "a", now.Add(-time.Minute))

	r := New(repo, blobs, nil)
	r.now = func() time.Time { return now }

	result, err := r.Reap(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.BlobsFound)
	assert.Zero(t, result.BlobsDeleted)
	assert.Equal(t, 1, blobs.Len())
}

func TestReap_GraceAndFailures(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()
	store := &failingDeletes{Backend: memstore.New(), fail: map[string]bool{}}

	recent := seedBlob(t, repo, store, "0001", "recent", now.Add(-time.Minute))
	stuck := seedBlob(t, repo, store, "0002", "stuck", now.Add(-time.Hour))
	store.fail[stuck] = true

	r := New(repo, store, nil)
	r.now = func() time.Time { return now }

	result, err := r.Reap(context.Background(), Options{Grace: 10 * time.Minute})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.BlobsFound)
	assert.Equal(t, int64(1), result.BlobsFailed)
	assert.Equal(t, []string{stuck}, result.FailedHandles)
	// only the stuck bundle's reference row
	assert.Equal(t, int64(1), result.RowsDeleted)

	// inside the grace window
	_, _, err = store.Get(context.Background(), recent)
	assert.NoError(t, err)

	// the failed blob keeps its row and bytes, and the next pass retries it
	_, err = repo.GetBlob(context.Background(), "stuck")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	delete(store.fail, stuck)
	result, err = r.Reap(context.Background(), Options{Grace: 10 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.BlobsDeleted)
	_, err = repo.GetBlob(context.Background(), "stuck")
	assert.ErrorIs(t, err, simpleshare.ErrPayloadNotFound)
	assert.Equal(t, 1, store.Len())
}

func TestReap_PagesPastFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()
	store := &failingDeletes{Backend: memstore.New(), fail: map[string]bool{}}

	for _, id := range []string{"a", "b"} {
		store.fail[seedBlob(t, repo, store, "0001", id, now.Add(-time.Hour))] = true
	}
	seedBlob(t, repo, store, "0001", "c", now.Add(-time.Hour))

	r := New(repo, store, nil)
	r.now = func() time.Time { return now }

	// the first page holds only failures
	result, err := r.Reap(ctx, Options{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.BlobsFound)
	assert.Equal(t, int64(2), result.BlobsFailed)
	assert.Equal(t, int64(1), result.BlobsDeleted)

	_, err = repo.GetBlob(ctx, "c")
	assert.ErrorIs(t, err, simpleshare.ErrPayloadNotFound)
	for _, id := range []string{"a", "b"} {
		_, err = repo.GetBlob(ctx, id)
		assert.NoError(t, err, id)
	}
	assert.Equal(t, 2, store.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := New(memory.New(), memstore.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond, Options{}) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Error(t, r.Run(context.Background(), 0, Options{}))
}

// Package repotest holds the behaviour checks every simpleshare.Repository
// implementation must pass.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Run exercises repo. newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) simpleshare.Repository) {
	t.Helper()

	t.Run("ClaimKey", func(t *testing.T) { testClaimKey(t, newRepo(t)) })
	t.Run("ClaimKeyConcurrent", func(t *testing.T) { testClaimKeyConcurrent(t, newRepo(t)) })
	t.Run("ClaimKeyPurgesStaleReferences", func(t *testing.T) { testClaimPurges(t, newRepo(t)) })
	t.Run("Payloads", func(t *testing.T) { testPayloads(t, newRepo(t)) })
	t.Run("References", func(t *testing.T) { testReferences(t, newRepo(t)) })
	t.Run("Reclamation", func(t *testing.T) { testReclamation(t, newRepo(t)) })
}

func base() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func testClaimKey(t *testing.T, repo simpleshare.Repository) {
	ctx := context.Background()
	now := base()
	exp := now.Add(2 * time.Hour)

	require.NoError(t, repo.ClaimKey(ctx, "0412", exp, now))

	err := repo.ClaimKey(ctx, "0412", exp, now.Add(time.Minute))
	assert.ErrorIs(t, err, simpleshare.ErrKeyTaken)

	// Other keys are independent
	assert.NoError(t, repo.ClaimKey(ctx, "0413", exp, now))

	// Once expired the value may be reused
	later := exp.Add(time.Second)
	assert.NoError(t, repo.ClaimKey(ctx, "0412", later.Add(2*time.Hour), later))

	// Released keys are immediately reusable
	require.NoError(t, repo.ReleaseKey(ctx, "0413"))
	assert.NoError(t, repo.ClaimKey(ctx, "0413", exp, now))

	// Releasing an unknown key is not an error
	assert.NoError(t, repo.ReleaseKey(ctx, "9999"))
}

func testClaimKeyConcurrent(t *testing.T, repo simpleshare.Repository) {
	ctx := context.Background()
	now := base()
	exp := now.Add(2 * time.Hour)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.ClaimKey(ctx, "0007", exp, now)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, simpleshare.ErrKeyTaken)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func testClaimPurges(t *testing.T, repo simpleshare.Repository) {
	ctx := context.Background()
	now := base()
	exp := now.Add(2 * time.Hour)

	require.NoError(t, repo.ClaimKey(ctx, "0100", exp, now))
	require.NoError(t, repo.CreateReference(ctx, &simpleshare.Reference{
		Key: "0100", Kind: simpleshare.KindText, PayloadID: uuid.NewString(), ExpiresAt: exp, CreatedAt: now,
	}))

	later := exp.Add(time.Minute)
	require.NoError(t, repo.ClaimKey(ctx, "0100", later.Add(2*time.Hour), later))

	refs, err := repo.References(ctx, "0100")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func testPayloads(t *testing.T, repo simpleshare.Repository) {
	ctx := context.Background()
	now := base()
	exp := now.Add(2 * time.Hour)

	text := &simpleshare.TextPayload{ID: uuid.NewString(), Body: "hello", ExpiresAt: exp, CreatedAt: now}
	require.NoError(t, repo.CreateText(ctx, text))

	gotText, err := repo.GetText(ctx, text.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", gotText.Body)
	assert.True(t, exp.Equal(gotText.ExpiresAt))

	blob := &simpleshare.BlobPayload{
		ID:          uuid.NewString(),
		DisplayName: "a.png",
		MimeType:    "image/png",
		BlobHandle:  uuid.NewString(),
		SizeBytes:   42,
		ExpiresAt:   exp,
		CreatedAt:   now,
	}
	require.NoError(t, repo.CreateBlob(ctx, blob))

	gotBlob, err := repo.GetBlob(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, blob.DisplayName, gotBlob.DisplayName)
	assert.Equal(t, blob.MimeType, gotBlob.MimeType)
	assert.Equal(t, blob.BlobHandle, gotBlob.BlobHandle)
	assert.Equal(t, int64(42), gotBlob.SizeBytes)

	require.NoError(t, repo.DeleteText(ctx, text.ID))
	_, err = repo.GetText(ctx, text.ID)
	assert.ErrorIs(t, err, simpleshare.ErrPayloadNotFound)
	assert.ErrorIs(t, repo.DeleteText(ctx, text.ID), simpleshare.ErrPayloadNotFound)

	require.NoError(t, repo.DeleteBlob(ctx, blob.ID))
	_, err = repo.GetBlob(ctx, blob.ID)
	assert.ErrorIs(t, err, simpleshare.ErrPayloadNotFound)
}

func testReferences(t *testing.T, repo simpleshare.Repository) {
	ctx := context.Background()
	now := base()
	exp := now.Add(2 * time.Hour)

	kinds := []simpleshare.Kind{simpleshare.KindText, simpleshare.KindImage, simpleshare.KindFile, simpleshare.KindImage}
	var ids []string
	for i, kind := range kinds {
		id := fmt.Sprintf("payload-%d", i)
		ids = append(ids, id)
		require.NoError(t, repo.CreateReference(ctx, &simpleshare.Reference{
			Key: "0042", Kind: kind, PayloadID: id, ExpiresAt: exp, CreatedAt: now,
		}))
	}
	require.NoError(t, repo.CreateReference(ctx, &simpleshare.Reference{
		Key: "legacy-key", Kind: simpleshare.KindText, PayloadID: "other", ExpiresAt: exp, CreatedAt: now,
	}))

	refs, err := repo.References(ctx, "0042")
	require.NoError(t, err)
	require.Len(t, refs, len(kinds))
	for i, ref := range refs {
		assert.Equal(t, "0042", ref.Key)
		assert.Equal(t, kinds[i], ref.Kind)
		assert.Equal(t, ids[i], ref.PayloadID)
		assert.True(t, exp.Equal(ref.ExpiresAt))
	}

	missing, err := repo.References(ctx, "0043")
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, repo.DeleteReferences(ctx, "0042"))
	refs, err = repo.References(ctx, "0042")
	require.NoError(t, err)
	assert.Empty(t, refs)

	legacy, err := repo.References(ctx, "legacy-key")
	require.NoError(t, err)
	assert.Len(t, legacy, 1)
}

func testReclamation(t *testing.T, repo simpleshare.Repository) {
	ctx := context.Background()
	now := base()
	oldExp := now.Add(-time.Hour)
	liveExp := now.Add(time.Hour)

	require.NoError(t, repo.ClaimKey(ctx, "0001", oldExp, now.Add(-3*time.Hour)))
	require.NoError(t, repo.ClaimKey(ctx, "0002", liveExp, now))

	for i, exp := range []time.Time{oldExp, oldExp, liveExp} {
		key := "0001"
		if exp.Equal(liveExp) {
			key = "0002"
		}
		blob := &simpleshare.BlobPayload{
			ID: fmt.Sprintf("blob-%d", i), DisplayName: "f.bin", MimeType: "application/octet-stream",
			BlobHandle: fmt.Sprintf("handle-%d", i), ExpiresAt: exp, CreatedAt: now,
		}
		require.NoError(t, repo.CreateBlob(ctx, blob))
		require.NoError(t, repo.CreateReference(ctx, &simpleshare.Reference{
			Key: key, Kind: simpleshare.KindFile, PayloadID: blob.ID, ExpiresAt: exp, CreatedAt: now,
		}))
	}
	require.NoError(t, repo.CreateText(ctx, &simpleshare.TextPayload{ID: "text-old", Body: "x", ExpiresAt: oldExp, CreatedAt: now}))

	expired, err := repo.ExpiredBlobs(ctx, now, "", 1)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "blob-0", expired[0].ID)

	expired, err = repo.ExpiredBlobs(ctx, now, "blob-0", 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "blob-1", expired[0].ID)

	expired, err = repo.ExpiredBlobs(ctx, now, "", 10)
	require.NoError(t, err)
	assert.Len(t, expired, 2)
	for _, b := range expired {
		assert.True(t, b.ExpiresAt.Before(now))
	}

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	// one text, two references, one key
	assert.Equal(t, int64(4), n)

	// blob rows outlive DeleteExpired until their bytes are reaped
	expired, err = repo.ExpiredBlobs(ctx, now, "", 10)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	_, err = repo.GetText(ctx, "text-old")
	assert.ErrorIs(t, err, simpleshare.ErrPayloadNotFound)

	refs, err := repo.References(ctx, "0001")
	require.NoError(t, err)
	assert.Empty(t, refs)

	refs, err = repo.References(ctx, "0002")
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	_, err = repo.GetBlob(ctx, "blob-2")
	assert.NoError(t, err)

	// key 0002 still live
	assert.ErrorIs(t, repo.ClaimKey(ctx, "0002", liveExp, now), simpleshare.ErrKeyTaken)
}

// Package storetest holds the behaviour checks every simpleshare.BlobStore
// implementation must pass.
package storetest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Run exercises store.
func Run(t *testing.T, store simpleshare.BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		content := []byte("PNG\x89 pretend image bytes")
		handle, err := store.Put(ctx, bytes.NewReader(content), "a.png", "image/png")
		require.NoError(t, err)
		require.NotEmpty(t, handle)

		rc, info, err := store.Get(ctx, handle)
		require.NoError(t, err)
		defer rc.Close()

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, content, got)
		assert.Equal(t, handle, info.Handle)
		assert.Equal(t, "a.png", info.Name)
		assert.Equal(t, "image/png", info.MimeType)
		assert.Equal(t, int64(len(content)), info.Length)
	})

	t.Run("DistinctHandles", func(t *testing.T) {
		h1, err := store.Put(ctx, strings.NewReader("one"), "same.txt", "text/plain")
		require.NoError(t, err)
		h2, err := store.Put(ctx, strings.NewReader("two"), "same.txt", "text/plain")
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})

	t.Run("Delete", func(t *testing.T) {
		handle, err := store.Put(ctx, strings.NewReader("bye"), "bye.txt", "text/plain")
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, handle))

		_, _, err = store.Get(ctx, handle)
		assert.ErrorIs(t, err, simpleshare.ErrBlobNotFound)

		// Already gone is not an error
		assert.NoError(t, store.Delete(ctx, handle))
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, _, err := store.Get(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, simpleshare.ErrBlobNotFound)
	})
}

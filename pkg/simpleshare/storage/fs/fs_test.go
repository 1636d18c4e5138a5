package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/fs"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/storetest"
)

func TestFSBackend(t *testing.T) {
	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	storetest.Run(t, backend)
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)
}

func TestFSBackend_Layout(t *testing.T) {
	baseDir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: baseDir, KeyGenerator: objectkey.NewFlatGenerator("blobs")})
	require.NoError(t, err)

	ctx := context.Background()
	handle, err := backend.Put(ctx, strings.NewReader("hello"), "hello.txt", "text/plain")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, "blobs", handle))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(filepath.Join(baseDir, "blobs", handle+".meta.json"))
	assert.NoError(t, err)

	require.NoError(t, backend.Delete(ctx, handle))
	_, err = os.Stat(filepath.Join(baseDir, "blobs"))
	assert.True(t, os.IsNotExist(err), "empty directories are cleaned up")
}

func TestFSBackend_RejectsForeignHandles(t *testing.T) {
	baseDir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: baseDir})
	require.NoError(t, err)

	outside := filepath.Join(baseDir, "secret")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))

	_, _, err = backend.Get(context.Background(), "../secret")
	assert.Error(t, err)
	assert.NoError(t, backend.Delete(context.Background(), "../secret"))

	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

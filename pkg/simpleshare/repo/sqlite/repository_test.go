package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/repotest"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/sqlite"
)

func TestSQLiteRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simpleshare.Repository {
		repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "share.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "share.db")

	repo, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, repo.CreateText(ctx, &simpleshare.TextPayload{ID: "t1", Body: "persisted"}))
	require.NoError(t, repo.Close())

	repo, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetText(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Body)
}

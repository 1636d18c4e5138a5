package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/postgres"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/repotest"
)

func TestPostgresRepository(t *testing.T) {
	connString := os.Getenv("SIMPLESHARE_PG_URL")
	if connString == "" {
		t.Skip("SIMPLESHARE_PG_URL not set, skipping postgres integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, postgres.EnsureSchema(ctx, pool))

	repotest.Run(t, func(t *testing.T) simpleshare.Repository {
		_, err := pool.Exec(ctx, `TRUNCATE share_keys, share_references, share_text_payloads, share_blob_payloads`)
		require.NoError(t, err)
		return postgres.NewWithPool(pool)
	})
}

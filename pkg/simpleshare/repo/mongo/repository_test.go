package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	sharemongo "github.com/tendant/simple-share/pkg/simpleshare/repo/mongo"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/repotest"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoRepository(t *testing.T) {
	uri := os.Getenv("SIMPLESHARE_MONGO_URL")
	if uri == "" {
		t.Skip("SIMPLESHARE_MONGO_URL not set, skipping mongo integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, client.Ping(ctx, nil))

	n := 0
	repotest.Run(t, func(t *testing.T) simpleshare.Repository {
		n++
		db := client.Database(fmt.Sprintf("simpleshare_test_%d_%d", time.Now().UnixNano(), n))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })

		// No TTL indexes here so the server does not reap fixtures mid-test
		return sharemongo.New(db)
	})

	t.Run("EnsureIndexes", func(t *testing.T) {
		db := client.Database(fmt.Sprintf("simpleshare_test_idx_%d", time.Now().UnixNano()))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })

		repo := sharemongo.New(db)
		require.NoError(t, repo.EnsureIndexes(ctx))
		// idempotent
		require.NoError(t, repo.EnsureIndexes(ctx))

		cur, err := db.Collection(sharemongo.ReferencesCollection).Indexes().List(ctx)
		require.NoError(t, err)
		var specs []bson.M
		require.NoError(t, cur.All(ctx, &specs))
		assert.Len(t, specs, 3)
	})
}

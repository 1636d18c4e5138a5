package gridfs_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/gridfs"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/storetest"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestGridFSBackend(t *testing.T) {
	uri := os.Getenv("SIMPLESHARE_MONGO_URL")
	if uri == "" {
		t.Skip("SIMPLESHARE_MONGO_URL not set, skipping gridfs integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(fmt.Sprintf("simpleshare_gridfs_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	backend, err := gridfs.New(db, "")
	require.NoError(t, err)

	t.Run("Conformance", func(t *testing.T) {
		storetest.Run(t, backend)
	})

	t.Run("ObjectIDHandles", func(t *testing.T) {
		handle, err := backend.Put(ctx, strings.NewReader("x"), "x.txt", "text/plain")
		require.NoError(t, err)
		_, err = primitive.ObjectIDFromHex(handle)
		assert.NoError(t, err)

		_, _, err = backend.Get(ctx, primitive.NewObjectID().Hex())
		assert.ErrorIs(t, err, simpleshare.ErrBlobNotFound)
	})
}

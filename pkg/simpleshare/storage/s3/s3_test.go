package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/storetest"
)

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		backend, err := New(context.Background(), Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
		assert.IsType(t, &objectkey.ShardedGenerator{}, backend.keys)
	})

	t.Run("InvalidHandle", func(t *testing.T) {
		backend, err := New(context.Background(), Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)

		_, _, err = backend.Get(context.Background(), "../../etc/passwd")
		assert.ErrorIs(t, err, simpleshare.ErrBlobNotFound)
		assert.NoError(t, backend.Delete(context.Background(), "not-a-handle"))
	})
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "typed NoSuchKey", err: &types.NoSuchKey{}, want: true},
		{name: "typed NotFound", err: fmt.Errorf("head: %w", &types.NotFound{}), want: true},
		{name: "generic NoSuchKey", err: &smithy.GenericAPIError{Code: "NoSuchKey"}, want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

// TestS3Backend_Integration runs against MinIO or S3 when SIMPLESHARE_S3_ENDPOINT is set
func TestS3Backend_Integration(t *testing.T) {
	endpoint := os.Getenv("SIMPLESHARE_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("SIMPLESHARE_S3_ENDPOINT not set, skipping S3 integration test")
	}

	bucket := os.Getenv("SIMPLESHARE_S3_BUCKET")
	if bucket == "" {
		bucket = "simpleshare-test"
	}

	backend, err := New(context.Background(), Config{
		Region:                 "us-east-1",
		Bucket:                 bucket,
		AccessKeyID:            os.Getenv("SIMPLESHARE_S3_ACCESS_KEY"),
		SecretAccessKey:        os.Getenv("SIMPLESHARE_S3_SECRET_KEY"),
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	storetest.Run(t, backend)
}

package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
)

// metaName is the user metadata entry carrying the display name
const metaName = "display-name"

// Config selects the bucket and how to reach it. Endpoint and UsePathStyle
// point the client at MinIO or another S3-compatible server.
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool

	// KeyGenerator lays out objects in the bucket. Defaults to sharded under "blobs".
	KeyGenerator objectkey.Generator

	// SSEAlgorithm is AES256 or aws:kms; SSEKMSKeyID only applies to the latter.
	EnableSSE    bool
	SSEAlgorithm string
	SSEKMSKeyID  string

	// CreateBucketIfNotExist is meant for local MinIO setups.
	CreateBucketIfNotExist bool
}

// Backend keeps share payloads as objects in one bucket
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	keys     objectkey.Generator
	config   Config
}

// New connects to the bucket, creating it first when asked to
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	keys := config.KeyGenerator
	if keys == nil {
		keys = objectkey.NewRecommendedGenerator()
	}

	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		keys:     keys,
		config:   config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, err
		}
	}

	return backend, nil
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &noSuchBucket) && !isNotFound(err) &&
		!strings.Contains(err.Error(), "BadRequest") {
		return fmt.Errorf("head bucket %s: %w", b.bucket, err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}

	// us-east-1 rejects an explicit location constraint
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", b.bucket, err)
	}

	return nil
}

// Put streams r to S3 through the multipart upload manager
func (b *Backend) Put(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error) {
	handle := objectkey.NewHandle()
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.keys.ObjectKey(handle)),
		Body:        r,
		ContentType: aws.String(mimeType),
		Metadata:    map[string]string{metaName: url.PathEscape(displayName)},
	}
	b.applySSE(input)

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return handle, nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// Get streams the object body
func (b *Backend) Get(ctx context.Context, handle string) (io.ReadCloser, *simpleshare.BlobInfo, error) {
	if !objectkey.ValidHandle(handle) {
		return nil, nil, simpleshare.ErrBlobNotFound
	}

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.keys.ObjectKey(handle)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, simpleshare.ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	info := &simpleshare.BlobInfo{
		Handle:   handle,
		MimeType: aws.ToString(result.ContentType),
		Length:   aws.ToInt64(result.ContentLength),
	}
	if info.MimeType == "" {
		info.MimeType = "application/octet-stream"
	}
	if name, ok := result.Metadata[metaName]; ok {
		if decoded, err := url.PathUnescape(name); err == nil {
			info.Name = decoded
		} else {
			info.Name = name
		}
	}

	return result.Body, info, nil
}

// Delete deletes content from S3. S3 reports success for missing keys.
func (b *Backend) Delete(ctx context.Context, handle string) error {
	if !objectkey.ValidHandle(handle) {
		return nil
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.keys.ObjectKey(handle)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// isNotFound matches the typed and the generic API error forms, since
// S3-compatible servers differ in which one they produce.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

var _ simpleshare.BlobStore = (*Backend)(nil)

package simpleshare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tendant/simple-share/pkg/simpleshare/urlstrategy"
)

// service implements the Service interface
type service struct {
	repository  Repository
	blobStore   BlobStore
	backendName string
	urls        URLStrategy
	eventSink   EventSink
	logger      *slog.Logger
	now         func() time.Time
	limits      Limits
	ttl         time.Duration
	maxAttempts int

	allocator *KeyAllocator
	registry  *ContentRegistry
	assembler *RetrievalAssembler
	deleter   *DeletionCoordinator
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend. name is used in errors and logs.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		s.backendName = name
		s.blobStore = store
	}
}

// WithURLStrategy sets how download URLs are derived from blob handles
func WithURLStrategy(strategy URLStrategy) Option {
	return func(s *service) {
		s.urls = strategy
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithLimits sets the create request limits
func WithLimits(limits Limits) Option {
	return func(s *service) {
		s.limits = limits
	}
}

// WithMaxKeyAttempts bounds consecutive key collisions per create
func WithMaxKeyAttempts(n int) Option {
	return func(s *service) {
		s.maxAttempts = n
	}
}

// WithTTL overrides the bundle lifetime. Intended for tests.
func WithTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.ttl = ttl
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		limits:      DefaultLimits(),
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxKeyAttempts,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if s.backendName == "" {
		s.backendName = "default"
	}
	if s.urls == nil {
		s.urls = urlstrategy.NewDefaultStrategy("")
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}

	s.allocator = NewKeyAllocator(s.repository)
	s.allocator.maxAttempts = s.maxAttempts
	s.allocator.now = s.now
	s.allocator.logger = s.logger

	s.registry = NewContentRegistry(s.repository)
	s.registry.now = s.now

	s.assembler = NewRetrievalAssembler(s.registry, s.repository, s.urls)
	s.assembler.now = s.now
	s.assembler.logger = s.logger

	s.deleter = NewDeletionCoordinator(s.registry, s.repository, s.blobStore)
	s.deleter.now = s.now
	s.deleter.logger = s.logger

	return s, nil
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := s.limits.Validate(req); err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.ttl)
	key, err := s.allocator.Allocate(ctx, expiresAt)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{
		Key:       key,
		ExpiresAt: expiresAt,
		ExpireIn:  expireInLabel(s.ttl),
	}

	if req.HasText() {
		outcome := ItemOutcome{Kind: KindText}
		payload, err := s.registry.BindText(ctx, key, req.Text, expiresAt)
		if err != nil {
			s.logger.Warn("failed to store text", "key", key, "error", err)
			outcome.Error = err.Error()
		} else {
			outcome.PayloadID = payload.ID
			outcome.Stored = true
		}
		result.Items = append(result.Items, outcome)
	}

	for _, up := range req.Images {
		result.Items = append(result.Items, s.storeBlob(ctx, key, KindImage, up, expiresAt))
	}
	for _, up := range req.Files {
		result.Items = append(result.Items, s.storeBlob(ctx, key, KindFile, up, expiresAt))
	}

	if result.StoredCount() == 0 {
		if err := s.registry.Release(ctx, key); err != nil {
			s.logger.Error("failed to release key", "key", key, "error", err)
		}
		return nil, fmt.Errorf("%w: none of %d items could be stored", ErrStorageBackend, len(result.Items))
	}

	if err := s.eventSink.BundleCreated(ctx, result); err != nil {
		s.logger.Error("event sink failed", "event", "bundle_created", "key", key, "error", err)
	}
	return result, nil
}

// storeBlob uploads one item and binds it to key. Failures are reported in
// the returned outcome.
func (s *service) storeBlob(ctx context.Context, key string, kind Kind, up Upload, expiresAt time.Time) ItemOutcome {
	outcome := ItemOutcome{Kind: kind, Name: up.Name}

	counter := &countingReader{r: up.Reader, limit: s.limits.MaxItemBytes}
	handle, err := s.blobStore.Put(ctx, counter, up.Name, up.MimeType)
	if err == nil && counter.overrun {
		_ = s.blobStore.Delete(ctx, handle)
		err = ErrItemTooLarge
	}
	if err != nil {
		err = s.storageError("put", handle, err)
		s.logger.Warn("failed to store item", "key", key, "kind", kind, "name", up.Name, "error", err)
		outcome.Error = err.Error()
		return outcome
	}

	payload := &BlobPayload{
		DisplayName: up.Name,
		MimeType:    up.MimeType,
		BlobHandle:  handle,
		SizeBytes:   counter.n,
	}
	if err := s.registry.BindBlob(ctx, key, kind, payload, expiresAt); err != nil {
		if derr := s.blobStore.Delete(ctx, handle); derr != nil {
			s.logger.Warn("failed to remove unbound blob", "handle", handle, "error", derr)
		}
		s.logger.Warn("failed to bind item", "key", key, "kind", kind, "name", up.Name, "error", err)
		outcome.Error = err.Error()
		return outcome
	}

	outcome.PayloadID = payload.ID
	outcome.Stored = true
	return outcome
}

func (s *service) Retrieve(ctx context.Context, key string) (*Bundle, error) {
	bundle, err := s.assembler.Assemble(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := s.eventSink.BundleRetrieved(ctx, bundle); err != nil {
		s.logger.Error("event sink failed", "event", "bundle_retrieved", "key", bundle.Key, "error", err)
	}
	return bundle, nil
}

func (s *service) Delete(ctx context.Context, key string) error {
	resolved, err := s.deleter.Delete(ctx, key)
	if err != nil {
		return err
	}

	if err := s.eventSink.BundleDeleted(ctx, resolved); err != nil {
		s.logger.Error("event sink failed", "event", "bundle_deleted", "key", resolved, "error", err)
	}
	return nil
}

func (s *service) Download(ctx context.Context, handle string) (*Download, error) {
	if handle == "" {
		return nil, &ValidationError{Field: "handle", Reason: "required"}
	}

	body, info, err := s.blobStore.Get(ctx, handle)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, fmt.Errorf("%w: blob %s", ErrNotFound, handle)
	}
	if err != nil {
		return nil, s.storageError("get", handle, err)
	}
	return &Download{Body: body, BlobInfo: *info}, nil
}

func (s *service) storageError(op, handle string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Backend: s.backendName, Handle: handle, Op: op, Err: err}
}

// countingReader counts bytes read and flags reads past limit.
type countingReader struct {
	r       io.Reader
	limit   int64
	n       int64
	overrun bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.overrun = true
		return n, ErrItemTooLarge
	}
	return n, err
}

func expireInLabel(ttl time.Duration) string {
	if ttl == DefaultTTL {
		return DefaultExpireIn
	}
	if ttl%time.Hour == 0 {
		h := int(ttl / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return ttl.String()
}

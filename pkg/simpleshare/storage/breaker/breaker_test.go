package breaker_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/breaker"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/storetest"
)

// flakyStore fails every call while down is set
type flakyStore struct {
	simpleshare.BlobStore
	down  bool
	calls int
}

var errDown = errors.New("backend down")

func (f *flakyStore) Put(ctx context.Context, r io.Reader, name, mime string) (string, error) {
	f.calls++
	if f.down {
		return "", errDown
	}
	return f.BlobStore.Put(ctx, r, name, mime)
}

func (f *flakyStore) Get(ctx context.Context, handle string) (io.ReadCloser, *simpleshare.BlobInfo, error) {
	f.calls++
	if f.down {
		return nil, nil, errDown
	}
	return f.BlobStore.Get(ctx, handle)
}

func TestBreaker_PassesThrough(t *testing.T) {
	storetest.Run(t, breaker.New(memory.New(), breaker.DefaultConfig()))
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	flaky := &flakyStore{BlobStore: memory.New(), down: true}
	store := breaker.New(flaky, breaker.Config{Name: "test", MaxFailures: 3, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Put(ctx, strings.NewReader("x"), "x", "text/plain")
		assert.ErrorIs(t, err, errDown)
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	_, err := store.Put(ctx, strings.NewReader("x"), "x", "text/plain")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, flaky.calls, "open circuit does not reach the backend")
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	store := breaker.New(memory.New(), breaker.Config{Name: "test", MaxFailures: 2, Timeout: time.Hour})

	for i := 0; i < 5; i++ {
		_, _, err := store.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, simpleshare.ErrBlobNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())
}

// oversizedReader fails the way the service's size-capped upload stream does
type oversizedReader struct{}

func (oversizedReader) Read(p []byte) (int, error) {
	return 0, simpleshare.ErrItemTooLarge
}

func TestBreaker_OversizedUploadDoesNotTrip(t *testing.T) {
	store := breaker.New(memory.New(), breaker.Config{Name: "test", MaxFailures: 2, Timeout: time.Hour})

	for i := 0; i < 5; i++ {
		_, err := store.Put(context.Background(), oversizedReader{}, "big.bin", "application/octet-stream")
		require.ErrorIs(t, err, simpleshare.ErrItemTooLarge)
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())

	_, err := store.Put(context.Background(), strings.NewReader("ok"), "ok.txt", "text/plain")
	assert.NoError(t, err)
}

// Package breaker wraps a BlobStore in a circuit breaker so a failing
// backend is short-circuited instead of timing out every request.
package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Config controls when the breaker trips
type Config struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures uint32
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the circuit stays open before a trial request
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the settings used by the server
func DefaultConfig() Config {
	return Config{
		Name:        "blobstore",
		MaxFailures: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
	}
}

// Store is a simpleshare.BlobStore guarded by a circuit breaker
type Store struct {
	next simpleshare.BlobStore
	cb   *gobreaker.CircuitBreaker
}

// New wraps next
func New(next simpleshare.BlobStore, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}

	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// Missing blobs, oversized uploads and cancelled requests say nothing
		// about backend health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, simpleshare.ErrBlobNotFound) ||
				errors.Is(err, simpleshare.ErrItemTooLarge) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Store{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the current breaker state
func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

func (s *Store) Put(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Put(ctx, r, displayName, mimeType)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type getResult struct {
	body io.ReadCloser
	info *simpleshare.BlobInfo
}

func (s *Store) Get(ctx context.Context, handle string) (io.ReadCloser, *simpleshare.BlobInfo, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		body, info, err := s.next.Get(ctx, handle)
		if err != nil {
			return nil, err
		}
		return getResult{body: body, info: info}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	res := out.(getResult)
	return res.body, res.info, nil
}

func (s *Store) Delete(ctx context.Context, handle string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Delete(ctx, handle)
	})
	return err
}

var _ simpleshare.BlobStore = (*Store)(nil)

package simpleshare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// KeyspaceSize is the number of distinct canonical keys.
const KeyspaceSize = 10000

// KeyWidth is the number of digits in a canonical key.
const KeyWidth = 4

// DefaultMaxKeyAttempts bounds consecutive collisions before giving up.
const DefaultMaxKeyAttempts = 100

// NormalizeKey trims raw and converts a 1-4 digit decimal string into its
// zero-padded canonical form. Anything else is returned verbatim as a legacy
// key and canonical is false.
func NormalizeKey(raw string) (key string, canonical bool) {
	key = strings.TrimSpace(raw)
	if !isShortDecimal(key) {
		return key, false
	}
	return strings.Repeat("0", KeyWidth-len(key)) + key, true
}

// IsCanonicalKey reports whether s is exactly 4 decimal digits.
func IsCanonicalKey(s string) bool {
	return len(s) == KeyWidth && isShortDecimal(s)
}

// IsShortKey reports whether raw (after trimming) is a 1-4 digit decimal string.
func IsShortKey(raw string) bool {
	return isShortDecimal(strings.TrimSpace(raw))
}

// LookupCandidates returns the keys to try for raw, canonical form first.
func LookupCandidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	key, canonical := NormalizeKey(trimmed)
	if canonical && key != trimmed {
		return []string{key, trimmed}
	}
	return []string{key}
}

func isShortDecimal(s string) bool {
	if len(s) == 0 || len(s) > KeyWidth {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatKey pads n into a canonical key.
func FormatKey(n int) string {
	return fmt.Sprintf("%0*d", KeyWidth, n)
}

// KeyClaimer is the subset of Repository the allocator needs.
type KeyClaimer interface {
	ClaimKey(ctx context.Context, key string, expiresAt, now time.Time) error
}

// KeyAllocator draws random canonical keys and claims them. The claim write
// is the uniqueness authority: a collision is signalled by ErrKeyTaken from
// the claim itself, never by a prior read.
type KeyAllocator struct {
	claimer     KeyClaimer
	maxAttempts int
	draw        func() int
	now         func() time.Time
	logger      *slog.Logger
}

// NewKeyAllocator creates an allocator with DefaultMaxKeyAttempts.
func NewKeyAllocator(claimer KeyClaimer) *KeyAllocator {
	return &KeyAllocator{
		claimer:     claimer,
		maxAttempts: DefaultMaxKeyAttempts,
		draw:        func() int { return rand.IntN(KeyspaceSize) },
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
}

// Allocate claims a free key for a bundle expiring at expiresAt.
func (a *KeyAllocator) Allocate(ctx context.Context, expiresAt time.Time) (string, error) {
	attempts := a.maxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxKeyAttempts
	}

	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		key := FormatKey(a.draw())
		err := a.claimer.ClaimKey(ctx, key, expiresAt, a.now())
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrKeyTaken) {
			return "", &KeyError{Key: key, Op: "claim", Err: err}
		}

		if i >= attempts-5 {
			a.logger.Warn("key collision near attempt limit", "attempt", i, "max_attempts", attempts)
		}
	}

	return "", fmt.Errorf("%w: no free key after %d attempts", ErrKeyspaceExhausted, attempts)
}

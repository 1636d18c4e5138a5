package simpleshare

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		raw       string
		key       string
		canonical bool
	}{
		{"42", "0042", true},
		{"0042", "0042", true},
		{" 7 ", "0007", true},
		{"0", "0000", true},
		{"9999", "9999", true},
		{"12345", "12345", false},
		{"abc", "abc", false},
		{"4a", "4a", false},
		{"-12", "-12", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			key, canonical := NormalizeKey(tt.raw)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.canonical, canonical)
		})
	}
}

func TestIsCanonicalKey(t *testing.T) {
	assert.True(t, IsCanonicalKey("0042"))
	assert.False(t, IsCanonicalKey("42"))
	assert.False(t, IsCanonicalKey("00421"))
	assert.False(t, IsCanonicalKey("00x2"))
}

func TestLookupCandidates(t *testing.T) {
	assert.Equal(t, []string{"0042", "42"}, LookupCandidates("42"))
	assert.Equal(t, []string{"0042"}, LookupCandidates("0042"))
	assert.Equal(t, []string{"legacy-key"}, LookupCandidates(" legacy-key "))
	assert.Nil(t, LookupCandidates("   "))
}

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "0000", FormatKey(0))
	assert.Equal(t, "0042", FormatKey(42))
	assert.Equal(t, "9999", FormatKey(9999))
}

type scriptedClaimer struct {
	mu      sync.Mutex
	taken   map[string]bool
	claimed []string
	err     error
}

func (c *scriptedClaimer) ClaimKey(ctx context.Context, key string, expiresAt, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.claimed = append(c.claimed, key)
	if c.err != nil {
		return c.err
	}
	if c.taken[key] {
		return ErrKeyTaken
	}
	c.taken[key] = true
	return nil
}

func sequence(values ...int) func() int {
	i := 0
	return func() int {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestKeyAllocator_Allocate(t *testing.T) {
	claimer := &scriptedClaimer{taken: map[string]bool{"0001": true, "0002": true}}
	alloc := NewKeyAllocator(claimer)
	alloc.draw = sequence(1, 2, 3)

	key, err := alloc.Allocate(context.Background(), time.Now().Add(DefaultTTL))
	require.NoError(t, err)
	assert.Equal(t, "0003", key)
	assert.Equal(t, []string{"0001", "0002", "0003"}, claimer.claimed)
}

func TestKeyAllocator_Exhausted(t *testing.T) {
	claimer := &scriptedClaimer{taken: map[string]bool{"0005": true}}
	alloc := NewKeyAllocator(claimer)
	alloc.draw = sequence(5)
	alloc.maxAttempts = 10

	_, err := alloc.Allocate(context.Background(), time.Now().Add(DefaultTTL))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyspaceExhausted)
	assert.Len(t, claimer.claimed, 10)
}

func TestKeyAllocator_ClaimFailure(t *testing.T) {
	boom := errors.New("connection reset")
	claimer := &scriptedClaimer{err: boom}
	alloc := NewKeyAllocator(claimer)
	alloc.draw = sequence(17)

	_, err := alloc.Allocate(context.Background(), time.Now().Add(DefaultTTL))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var keyErr *KeyError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, "0017", keyErr.Key)
	assert.Len(t, claimer.claimed, 1)
}

func TestKeyAllocator_Canceled(t *testing.T) {
	claimer := &scriptedClaimer{taken: map[string]bool{}}
	alloc := NewKeyAllocator(claimer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := alloc.Allocate(ctx, time.Now().Add(DefaultTTL))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, claimer.claimed)
}

func TestKeyAllocator_DrawsWithinKeyspace(t *testing.T) {
	claimer := &scriptedClaimer{taken: map[string]bool{}}
	alloc := NewKeyAllocator(claimer)

	for i := 0; i < 200; i++ {
		key, err := alloc.Allocate(context.Background(), time.Now().Add(DefaultTTL))
		require.NoError(t, err)
		assert.True(t, IsCanonicalKey(key), key)
	}
}

func TestExpireInLabel(t *testing.T) {
	assert.Equal(t, "2 hours", expireInLabel(DefaultTTL))
	assert.Equal(t, "1 hour", expireInLabel(time.Hour))
	assert.Equal(t, "5 hours", expireInLabel(5*time.Hour))
	assert.Equal(t, "30m0s", expireInLabel(30*time.Minute))
}

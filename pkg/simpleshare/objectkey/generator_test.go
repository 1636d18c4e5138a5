package objectkey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHandle = "987fcdeb-51a2-43d1-9f12-345678901234"

func TestFlatGenerator(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		expected string
	}{
		{name: "no prefix", prefix: "", expected: testHandle},
		{name: "with prefix", prefix: "blobs", expected: "blobs/" + testHandle},
		{name: "slashes trimmed", prefix: "/blobs/", expected: "blobs/" + testHandle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewFlatGenerator(tt.prefix).ObjectKey(testHandle))
		})
	}
}

func TestShardedGenerator(t *testing.T) {
	gen := NewShardedGenerator("blobs")
	assert.Equal(t, "blobs/98/7fcdeb51a243d19f12345678901234", gen.ObjectKey(testHandle))

	gen.ShardLength = 3
	assert.Equal(t, "blobs/987/fcdeb51a243d19f12345678901234", gen.ObjectKey(testHandle))

	noPrefix := &ShardedGenerator{}
	assert.True(t, strings.HasPrefix(noPrefix.ObjectKey(testHandle), "98/"))
}

func TestHashedGenerator(t *testing.T) {
	gen := NewHashedGenerator("blobs")
	key := gen.ObjectKey(testHandle)

	// deterministic
	assert.Equal(t, key, gen.ObjectKey(testHandle))
	assert.True(t, strings.HasPrefix(key, "blobs/"))
	assert.True(t, strings.HasSuffix(key, "/"+testHandle))
	assert.Len(t, strings.Split(key, "/"), 3)
}

func TestValidHandle(t *testing.T) {
	assert.True(t, ValidHandle(testHandle))
	assert.True(t, ValidHandle(NewHandle()))
	assert.False(t, ValidHandle(""))
	assert.False(t, ValidHandle("../../etc/passwd"))
	assert.False(t, ValidHandle("0412"))
}

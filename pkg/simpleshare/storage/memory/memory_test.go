package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/storetest"
)

func TestMemoryBackend(t *testing.T) {
	storetest.Run(t, memory.New())
}

func TestMemoryBackend_DefaultMimeType(t *testing.T) {
	b := memory.New()
	handle, err := b.Put(context.Background(), strings.NewReader("x"), "x", "")
	require.NoError(t, err)

	_, info, err := b.Get(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", info.MimeType)
	assert.Equal(t, 1, b.Len())
}

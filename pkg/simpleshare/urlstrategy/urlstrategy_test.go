package urlstrategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
)

const handle = "987fcdeb-51a2-43d1-9f12-345678901234"

func TestAPIRoutedStrategy(t *testing.T) {
	ctx := context.Background()

	s := NewAPIRoutedStrategy("https://share.example.com/api/")
	got, err := s.GenerateDownloadURL(ctx, handle, "a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://share.example.com/api/download/"+handle, got)

	again, err := s.GenerateDownloadURL(ctx, handle, "other-name.png")
	require.NoError(t, err)
	assert.Equal(t, got, again, "url depends on the handle only")

	_, err = NewAPIRoutedStrategy("").GenerateDownloadURL(ctx, handle, "")
	assert.Error(t, err)

	_, err = s.GenerateDownloadURL(ctx, "", "")
	assert.Error(t, err)
}

func TestCDNStrategy(t *testing.T) {
	ctx := context.Background()
	s := NewCDNStrategy("https://cdn.example.com/", objectkey.NewFlatGenerator("blobs"))

	got, err := s.GenerateDownloadURL(ctx, handle, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/blobs/"+handle, got)

	got, err = s.GenerateDownloadURL(ctx, handle, "my file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/blobs/"+handle+"?filename=my+file.pdf", got)

	_, err = s.GenerateDownloadURL(ctx, "../x", "")
	assert.Error(t, err)
}

func TestNewURLStrategy(t *testing.T) {
	s, err := NewURLStrategy(Config{})
	require.NoError(t, err)
	assert.IsType(t, &APIRoutedStrategy{}, s)
	assert.Equal(t, DefaultAPIBaseURL, s.(*APIRoutedStrategy).APIBaseURL)

	s, err = NewURLStrategy(Config{Type: StrategyTypeCDN, CDNBaseURL: "https://cdn.example.com"})
	require.NoError(t, err)
	assert.IsType(t, &CDNStrategy{}, s)

	_, err = NewURLStrategy(Config{Type: StrategyTypeCDN})
	assert.Error(t, err)

	_, err = NewURLStrategy(Config{Type: "storage-delegated"})
	assert.Error(t, err)
}

// Package urlstrategy derives download URLs from blob handles. Every
// strategy is a pure function of its inputs, so URLs are never stored.
package urlstrategy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
)

// URLStrategy defines the interface for URL generation strategies
type URLStrategy interface {
	// GenerateDownloadURL creates a download URL for a blob handle
	GenerateDownloadURL(ctx context.Context, handle string, fileName string) (string, error)
}

// APIRoutedStrategy routes downloads through the application's download endpoint
type APIRoutedStrategy struct {
	APIBaseURL string // e.g., "https://share.example.com/api" or "/api"
}

// NewAPIRoutedStrategy creates a new API-routed URL strategy
func NewAPIRoutedStrategy(apiBaseURL string) *APIRoutedStrategy {
	return &APIRoutedStrategy{
		APIBaseURL: strings.TrimSuffix(apiBaseURL, "/"),
	}
}

// GenerateDownloadURL returns <base>/download/<handle>
func (s *APIRoutedStrategy) GenerateDownloadURL(ctx context.Context, handle string, fileName string) (string, error) {
	if s.APIBaseURL == "" {
		return "", fmt.Errorf("API base URL not configured")
	}
	if handle == "" {
		return "", fmt.Errorf("handle is required")
	}
	return fmt.Sprintf("%s/download/%s", s.APIBaseURL, url.PathEscape(handle)), nil
}

// CDNStrategy points downloads straight at a CDN in front of the blob bucket
type CDNStrategy struct {
	CDNBaseURL string // e.g., "https://cdn.example.com"
	Keys       objectkey.Generator
}

// NewCDNStrategy creates a new CDN URL strategy. keys must match the layout
// used by the blob store behind the CDN.
func NewCDNStrategy(cdnBaseURL string, keys objectkey.Generator) *CDNStrategy {
	if keys == nil {
		keys = objectkey.NewRecommendedGenerator()
	}
	return &CDNStrategy{
		CDNBaseURL: strings.TrimSuffix(cdnBaseURL, "/"),
		Keys:       keys,
	}
}

// GenerateDownloadURL returns <cdn>/<object key>
func (s *CDNStrategy) GenerateDownloadURL(ctx context.Context, handle string, fileName string) (string, error) {
	if s.CDNBaseURL == "" {
		return "", fmt.Errorf("CDN base URL not configured")
	}
	if !objectkey.ValidHandle(handle) {
		return "", fmt.Errorf("invalid handle %q", handle)
	}

	u := fmt.Sprintf("%s/%s", s.CDNBaseURL, s.Keys.ObjectKey(handle))
	if fileName != "" {
		u += "?filename=" + url.QueryEscape(fileName)
	}
	return u, nil
}

package urlstrategy

import (
	"fmt"

	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
)

// StrategyType represents the type of URL strategy
type StrategyType string

const (
	// StrategyTypeAPI routes downloads through the application
	StrategyTypeAPI StrategyType = "api"

	// StrategyTypeCDN serves downloads directly from a CDN
	StrategyTypeCDN StrategyType = "cdn"
)

// DefaultAPIBaseURL matches the server's route prefix
const DefaultAPIBaseURL = "/api"

// Config holds configuration for URL strategy creation
type Config struct {
	Type         StrategyType
	APIBaseURL   string
	CDNBaseURL   string
	KeyGenerator objectkey.Generator // For CDN strategy
}

// NewURLStrategy creates a URL strategy based on the configuration
func NewURLStrategy(config Config) (URLStrategy, error) {
	switch config.Type {
	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		return NewCDNStrategy(config.CDNBaseURL, config.KeyGenerator), nil

	case StrategyTypeAPI, "":
		if config.APIBaseURL == "" {
			config.APIBaseURL = DefaultAPIBaseURL
		}
		return NewAPIRoutedStrategy(config.APIBaseURL), nil

	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// NewDefaultStrategy creates the API-routed strategy
func NewDefaultStrategy(apiBaseURL string) URLStrategy {
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	return NewAPIRoutedStrategy(apiBaseURL)
}

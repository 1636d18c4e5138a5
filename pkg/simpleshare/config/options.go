package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithRegistryURL selects the metadata store
func WithRegistryURL(raw string) Option {
	return func(c *ServerConfig) error {
		if _, err := parseRegistryURL(raw); err != nil {
			return err
		}
		c.RegistryURL = raw
		return nil
	}
}

// WithStorageURL selects the blob store
func WithStorageURL(raw string) Option {
	return func(c *ServerConfig) error {
		if _, err := parseStorageURL(raw); err != nil {
			return err
		}
		c.StorageURL = raw
		return nil
	}
}

// WithCDN serves download URLs from baseURL instead of the API
func WithCDN(baseURL string) Option {
	return func(c *ServerConfig) error {
		if baseURL == "" {
			return fmt.Errorf("CDN base URL cannot be empty")
		}
		c.URLStrategy = "cdn"
		c.CDNBaseURL = baseURL
		return nil
	}
}

// WithBreaker wraps the blob store in a circuit breaker
func WithBreaker(maxFailures uint32, timeout time.Duration) Option {
	return func(c *ServerConfig) error {
		c.Breaker = BreakerConfig{Enabled: true, MaxFailures: maxFailures, Timeout: timeout}
		return nil
	}
}

// WithKafka publishes lifecycle events to topic
func WithKafka(brokers []string, topic string) Option {
	return func(c *ServerConfig) error {
		if len(brokers) == 0 {
			return fmt.Errorf("at least one kafka broker is required")
		}
		c.KafkaBrokers = brokers
		if topic != "" {
			c.KafkaTopic = topic
		}
		return nil
	}
}

// WithMetrics toggles the Prometheus sink and /metrics endpoint
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithCORSOrigins sets the allowed browser origins
func WithCORSOrigins(origins ...string) Option {
	return func(c *ServerConfig) error {
		c.CORSOrigins = origins
		return nil
	}
}

// WithRateLimit sets the general and create limits. A zero count disables limiting.
func WithRateLimit(requests int, window time.Duration, creates int, createWindow time.Duration) Option {
	return func(c *ServerConfig) error {
		if requests == 0 && creates == 0 {
			c.RateLimit.Enabled = false
			return nil
		}
		c.RateLimit.Enabled = true
		c.RateLimit.Requests = requests
		c.RateLimit.Window = window
		c.RateLimit.Creates = creates
		c.RateLimit.CreateWindow = createWindow
		return nil
	}
}

// WithRedisRateLimit shares rate limit counters through Redis
func WithRedisRateLimit(redisURL string) Option {
	return func(c *ServerConfig) error {
		if redisURL == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.RateLimit.RedisURL = redisURL
		return nil
	}
}

// WithReaper runs the reaper inside the server every interval
func WithReaper(interval time.Duration, batchSize int) Option {
	return func(c *ServerConfig) error {
		c.Reaper.Enabled = true
		c.Reaper.Interval = interval
		if batchSize > 0 {
			c.Reaper.BatchSize = batchSize
		}
		return nil
	}
}

// WithLimits overrides the per-request item limits
func WithLimits(maxItemsPerKind int, maxItemBytes int64) Option {
	return func(c *ServerConfig) error {
		c.MaxItemsPerKind = maxItemsPerKind
		c.MaxItemBytes = maxItemBytes
		return nil
	}
}

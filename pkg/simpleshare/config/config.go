package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:          "8080",
		Environment:   "development",
		RegistryURL:   "memory",
		MongoDatabase: "simpleshare",
		StorageURL:    "memory://",
		ObjectLayout:  "sharded",
		URLStrategy:   "api",
		APIBaseURL:    "/api",
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		KafkaTopic:         "simpleshare.events",
		EnableEventLogging: true,
		EnableMetrics:      true,
		MaxItemsPerKind:    20,
		MaxItemBytes:       10 << 20,
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Window:       15 * time.Minute,
			Requests:     100,
			CreateWindow: time.Hour,
			Creates:      50,
		},
		Reaper: ReaperConfig{
			Interval:  10 * time.Minute,
			BatchSize: 100,
		},
		ShutdownTimeout: 15 * time.Second,
	}
}

// ServerConfig represents server configuration for the simple-share service.
// Every field can be set from the environment or a config file.
type ServerConfig struct {
	Port        string `yaml:"port" json:"port" env:"PORT"`
	Environment string `yaml:"environment" json:"environment" env:"ENVIRONMENT"` // development, production, testing

	// RegistryURL selects the metadata store: memory, postgres://, sqlite://path, mongodb://
	RegistryURL   string `yaml:"registry_url" json:"registry_url" env:"REGISTRY_URL"`
	DBSchema      string `yaml:"db_schema" json:"db_schema" env:"DB_SCHEMA"`                // Postgres search_path
	MongoDatabase string `yaml:"mongo_database" json:"mongo_database" env:"MONGO_DATABASE"` // used when the URL names none

	// StorageURL selects the blob store: memory://, file:///path, s3://bucket?region=.., gridfs://bucket
	StorageURL   string   `yaml:"storage_url" json:"storage_url" env:"STORAGE_URL"`
	ObjectLayout string   `yaml:"object_layout" json:"object_layout" env:"OBJECT_LAYOUT"` // sharded, flat, hashed
	S3           S3Config `yaml:"s3" json:"s3"`

	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`

	URLStrategy string `yaml:"url_strategy" json:"url_strategy" env:"URL_STRATEGY"` // api, cdn
	APIBaseURL  string `yaml:"api_base_url" json:"api_base_url" env:"API_BASE_URL"`
	CDNBaseURL  string `yaml:"cdn_base_url" json:"cdn_base_url" env:"CDN_BASE_URL"`

	KafkaBrokers       []string `yaml:"kafka_brokers" json:"kafka_brokers" env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic         string   `yaml:"kafka_topic" json:"kafka_topic" env:"KAFKA_TOPIC"`
	EnableEventLogging bool     `yaml:"enable_event_logging" json:"enable_event_logging" env:"ENABLE_EVENT_LOGGING"`
	EnableMetrics      bool     `yaml:"enable_metrics" json:"enable_metrics" env:"ENABLE_METRICS"`

	MaxItemsPerKind int   `yaml:"max_items_per_kind" json:"max_items_per_kind" env:"MAX_ITEMS_PER_KIND"`
	MaxItemBytes    int64 `yaml:"max_item_bytes" json:"max_item_bytes" env:"MAX_ITEM_BYTES"`

	CORSOrigins []string        `yaml:"cors_origins" json:"cors_origins" env:"CORS_ORIGINS" env-separator:","`
	RateLimit   RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Reaper      ReaperConfig    `yaml:"reaper" json:"reaper"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// S3Config holds credentials and options not carried by STORAGE_URL
type S3Config struct {
	Region          string `yaml:"region" json:"region" env:"AWS_REGION"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint        string `yaml:"endpoint" json:"endpoint" env:"AWS_S3_ENDPOINT"`
	UsePathStyle    bool   `yaml:"use_path_style" json:"use_path_style" env:"AWS_S3_USE_PATH_STYLE"`
	EnableSSE       bool   `yaml:"enable_sse" json:"enable_sse" env:"AWS_S3_ENABLE_SSE"`
	SSEAlgorithm    string `yaml:"sse_algorithm" json:"sse_algorithm" env:"AWS_S3_SSE_ALGORITHM"`
	SSEKMSKeyID     string `yaml:"sse_kms_key_id" json:"sse_kms_key_id" env:"AWS_S3_SSE_KMS_KEY_ID"`
	CreateBucket    bool   `yaml:"create_bucket" json:"create_bucket" env:"AWS_S3_CREATE_BUCKET"`
}

// BreakerConfig wraps the blob store in a circuit breaker when enabled
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" env:"BREAKER_ENABLED"`
	MaxFailures uint32        `yaml:"max_failures" json:"max_failures" env:"BREAKER_MAX_FAILURES"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"BREAKER_TIMEOUT"`
}

// RateLimitConfig bounds requests per client IP. RedisURL switches from the
// in-process limiter to a shared Redis counter.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled" env:"RATE_LIMIT_ENABLED"`
	Window       time.Duration `yaml:"window" json:"window" env:"RATE_LIMIT_WINDOW"`
	Requests     int           `yaml:"requests" json:"requests" env:"RATE_LIMIT_REQUESTS"`
	CreateWindow time.Duration `yaml:"create_window" json:"create_window" env:"RATE_LIMIT_CREATE_WINDOW"`
	Creates      int           `yaml:"creates" json:"creates" env:"RATE_LIMIT_CREATES"`
	RedisURL     string        `yaml:"redis_url" json:"redis_url" env:"REDIS_URL"`
}

// ReaperConfig controls the in-process reaper started by serve
type ReaperConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" env:"REAPER_ENABLED"`
	Interval  time.Duration `yaml:"interval" json:"interval" env:"REAPER_INTERVAL"`
	BatchSize int           `yaml:"batch_size" json:"batch_size" env:"REAPER_BATCH_SIZE"`
	Grace     time.Duration `yaml:"grace" json:"grace" env:"REAPER_GRACE"`
}

// IsProduction reports whether Environment is production
func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if _, err := parseRegistryURL(c.RegistryURL); err != nil {
		return err
	}
	storage, err := parseStorageURL(c.StorageURL)
	if err != nil {
		return err
	}
	if storage.kind == "gridfs" && !strings.HasPrefix(c.RegistryURL, "mongodb") {
		return errors.New("gridfs storage requires a mongodb registry_url")
	}

	switch c.ObjectLayout {
	case "sharded", "flat", "hashed":
	default:
		return fmt.Errorf("object_layout must be 'sharded', 'flat' or 'hashed', got: %s", c.ObjectLayout)
	}

	switch c.URLStrategy {
	case "api":
	case "cdn":
		if c.CDNBaseURL == "" {
			return errors.New("cdn_base_url is required for the cdn url strategy")
		}
	default:
		return fmt.Errorf("url_strategy must be 'api' or 'cdn', got: %s", c.URLStrategy)
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("kafka_topic is required when kafka_brokers are set")
	}

	if c.MaxItemsPerKind <= 0 {
		return errors.New("max_items_per_kind must be positive")
	}
	if c.MaxItemBytes <= 0 {
		return errors.New("max_item_bytes must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 || c.RateLimit.Requests <= 0 {
			return errors.New("rate_limit window and requests must be positive")
		}
		if c.RateLimit.CreateWindow <= 0 || c.RateLimit.Creates <= 0 {
			return errors.New("rate_limit create_window and creates must be positive")
		}
	}

	if c.Reaper.Enabled && c.Reaper.Interval <= 0 {
		return errors.New("reaper interval must be positive")
	}

	return nil
}

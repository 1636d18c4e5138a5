package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// WithEnv applies environment variable overrides. Variables that are not set
// leave the current value alone.
//
// Main selectors:
//
//	REGISTRY_URL - metadata store (default: "memory")
//	               "postgres://..." or "postgresql://..." - PostgreSQL
//	               "sqlite:///path/to/share.db"           - embedded SQLite
//	               "mongodb://..."                        - MongoDB
//	STORAGE_URL  - blob store (default: "memory://")
//	               "file:///path/to/data"                  - filesystem
//	               "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//	               "gridfs://bucket"                       - GridFS in the registry database
//
// See EnvUsage for the complete list.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile reads a YAML, JSON, TOML or .env file. Environment variables
// are applied on top of the file.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// It must come before WithEnv.
func WithDotEnv(paths ...string) Option {
	return func(c *ServerConfig) error {
		if len(paths) == 0 {
			paths = []string{".env"}
		}
		for _, p := range paths {
			if err := godotenv.Load(p); err != nil {
				if isNotExist(err) {
					continue
				}
				return fmt.Errorf("load %s: %w", p, err)
			}
		}
		return nil
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// EnvUsage describes every environment variable ServerConfig reads
func EnvUsage() string {
	header := "Environment variables:"
	cfg := defaults()
	text, err := cleanenv.GetDescription(&cfg, &header)
	if err != nil {
		return header
	}
	return text
}

type registryTarget struct {
	kind string // memory, postgres, sqlite, mongo
	dsn  string
}

func parseRegistryURL(raw string) (registryTarget, error) {
	switch {
	case raw == "" || raw == "memory" || raw == "memory://":
		return registryTarget{kind: "memory"}, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return registryTarget{kind: "postgres", dsn: raw}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return registryTarget{}, fmt.Errorf("sqlite path cannot be empty in REGISTRY_URL")
		}
		return registryTarget{kind: "sqlite", dsn: path}, nil
	case strings.HasPrefix(raw, "mongodb://"), strings.HasPrefix(raw, "mongodb+srv://"):
		return registryTarget{kind: "mongo", dsn: raw}, nil
	}
	return registryTarget{}, fmt.Errorf("unsupported REGISTRY_URL format: %s (use 'memory', 'postgres://...', 'sqlite://...' or 'mongodb://...')", raw)
}

// mongoDatabaseName returns the database named in a mongodb URL path
func mongoDatabaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.Trim(u.Path, "/")
}

type storageTarget struct {
	kind      string // memory, fs, s3, gridfs
	path      string
	bucket    string
	region    string
	endpoint  string
	pathStyle bool
}

func parseStorageURL(raw string) (storageTarget, error) {
	switch {
	case raw == "" || raw == "memory" || raw == "memory://":
		return storageTarget{kind: "memory"}, nil

	case strings.HasPrefix(raw, "file://"):
		path := strings.TrimPrefix(raw, "file://")
		if path == "" {
			return storageTarget{}, fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		return storageTarget{kind: "fs", path: path}, nil

	case strings.HasPrefix(raw, "s3://"):
		u, err := url.Parse(raw)
		if err != nil {
			return storageTarget{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
		}
		if u.Host == "" {
			return storageTarget{}, fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		t := storageTarget{
			kind:     "s3",
			bucket:   u.Host,
			region:   q.Get("region"),
			endpoint: q.Get("endpoint"),
		}
		if v := q.Get("path_style"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return storageTarget{}, fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
			}
			t.pathStyle = b
		}
		return t, nil

	case strings.HasPrefix(raw, "gridfs://"):
		return storageTarget{kind: "gridfs", bucket: strings.TrimPrefix(raw, "gridfs://")}, nil
	}
	return storageTarget{}, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', 's3://...' or 'gridfs://...')", raw)
}

// redactURL hides credentials in a connection string for logging
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/simple-share/pkg/simpleshare"
	kafkasink "github.com/tendant/simple-share/pkg/simpleshare/events/kafka"
	"github.com/tendant/simple-share/pkg/simpleshare/metrics"
	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
	"github.com/tendant/simple-share/pkg/simpleshare/repo/memory"
	repomongo "github.com/tendant/simple-share/pkg/simpleshare/repo/mongo"
	repopg "github.com/tendant/simple-share/pkg/simpleshare/repo/postgres"
	reposqlite "github.com/tendant/simple-share/pkg/simpleshare/repo/sqlite"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/breaker"
	fsstorage "github.com/tendant/simple-share/pkg/simpleshare/storage/fs"
	gridfsstorage "github.com/tendant/simple-share/pkg/simpleshare/storage/gridfs"
	memorystorage "github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
	s3storage "github.com/tendant/simple-share/pkg/simpleshare/storage/s3"
	"github.com/tendant/simple-share/pkg/simpleshare/urlstrategy"
)

// Runtime is a built service together with the pieces the server and the
// reaper need direct access to.
type Runtime struct {
	Service    simpleshare.Service
	Repository simpleshare.Repository
	BlobStore  simpleshare.BlobStore
	Limits     simpleshare.Limits

	// Metrics is nil when metrics are disabled
	Metrics *metrics.Metrics

	closers []func(context.Context) error
}

// Close releases connections in reverse order of creation
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// Limits returns the request limits described by the configuration
func (c *ServerConfig) Limits() simpleshare.Limits {
	limits := simpleshare.DefaultLimits()
	limits.MaxItemsPerKind = c.MaxItemsPerKind
	limits.MaxItemBytes = c.MaxItemBytes
	return limits
}

// BuildService creates the repository, blob store and event sinks described
// by the configuration and wires them into a Service.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Limits: c.Limits()}

	var mongoDB *mongo.Database
	repo, err := c.buildRepository(ctx, rt, &mongoDB)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Repository = repo

	storageName, store, err := c.buildStorageBackend(ctx, mongoDB)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}
	if c.Breaker.Enabled {
		cfg := breaker.DefaultConfig()
		cfg.Name = storageName
		cfg.MaxFailures = c.Breaker.MaxFailures
		cfg.Timeout = c.Breaker.Timeout
		cfg.Logger = logger
		store = breaker.New(store, cfg)
	}
	rt.BlobStore = store

	urls, err := c.buildURLStrategy()
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	var sinks []simpleshare.EventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simpleshare.NewLoggingEventSink(logger))
	}
	if c.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rt.Metrics = metrics.New(reg)
		sinks = append(sinks, rt.Metrics)
	}
	if len(c.KafkaBrokers) > 0 {
		sink := kafkasink.New(kafkasink.NewWriter(c.KafkaBrokers, c.KafkaTopic))
		rt.onClose(func(context.Context) error { return sink.Close() })
		sinks = append(sinks, sink)
	}

	svc, err := simpleshare.New(
		simpleshare.WithRepository(repo),
		simpleshare.WithBlobStore(storageName, store),
		simpleshare.WithURLStrategy(urls),
		simpleshare.WithEventSink(simpleshare.NewMultiEventSink(sinks...)),
		simpleshare.WithLogger(logger),
		simpleshare.WithLimits(rt.Limits),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.Service = svc

	logger.Info("service configured",
		"registry", redactURL(c.RegistryURL),
		"storage", storageName,
		"breaker", c.Breaker.Enabled,
		"metrics", c.EnableMetrics,
		"kafka", len(c.KafkaBrokers) > 0)
	return rt, nil
}

// buildRepository creates a Repository based on the configuration. A mongo
// database handle is returned through mongoDB for GridFS.
func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime, mongoDB **mongo.Database) (simpleshare.Repository, error) {
	target, err := parseRegistryURL(c.RegistryURL)
	if err != nil {
		return nil, err
	}

	switch target.kind {
	case "memory":
		return memory.New(), nil

	case "postgres":
		cfg, err := pgxpool.ParseConfig(target.dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REGISTRY_URL: %w", err)
		}
		if schema := c.DBSchema; schema != "" {
			cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		rt.onClose(func(context.Context) error { pool.Close(); return nil })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := repopg.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		return repopg.NewWithPool(pool), nil

	case "sqlite":
		repo, err := reposqlite.Open(ctx, target.dsn)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { return repo.Close() })
		return repo, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(target.dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		rt.onClose(client.Disconnect)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return nil, fmt.Errorf("mongodb ping failed: %w", err)
		}

		name := mongoDatabaseName(target.dsn)
		if name == "" {
			name = c.MongoDatabase
		}
		db := client.Database(name)
		repo := repomongo.New(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		*mongoDB = db
		return repo, nil
	}
	return nil, fmt.Errorf("unsupported registry type: %s", target.kind)
}

// buildStorageBackend creates a BlobStore and the name used for it in errors and logs
func (c *ServerConfig) buildStorageBackend(ctx context.Context, mongoDB *mongo.Database) (string, simpleshare.BlobStore, error) {
	target, err := parseStorageURL(c.StorageURL)
	if err != nil {
		return "", nil, err
	}

	switch target.kind {
	case "memory":
		return "memory", memorystorage.New(), nil

	case "fs":
		store, err := fsstorage.New(fsstorage.Config{
			BaseDir:      target.path,
			KeyGenerator: c.objectKeys(),
		})
		return "fs", store, err

	case "s3":
		cfg := s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 target.bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle || target.pathStyle,
			KeyGenerator:           c.objectKeys(),
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		}
		if target.region != "" {
			cfg.Region = target.region
		}
		if target.endpoint != "" {
			cfg.Endpoint = target.endpoint
		}
		if cfg.Region == "" {
			cfg.Region = "us-east-1"
		}
		store, err := s3storage.New(ctx, cfg)
		return "s3", store, err

	case "gridfs":
		if mongoDB == nil {
			return "", nil, errors.New("gridfs storage requires a mongodb registry")
		}
		bucket := target.bucket
		if bucket == "" {
			bucket = gridfsstorage.DefaultBucket
		}
		store, err := gridfsstorage.New(mongoDB, bucket)
		return "gridfs", store, err
	}
	return "", nil, fmt.Errorf("unsupported storage backend type: %s", target.kind)
}

func (c *ServerConfig) objectKeys() objectkey.Generator {
	switch c.ObjectLayout {
	case "flat":
		return objectkey.NewFlatGenerator("blobs")
	case "hashed":
		return objectkey.NewHashedGenerator("blobs")
	default:
		return objectkey.NewRecommendedGenerator()
	}
}

func (c *ServerConfig) buildURLStrategy() (simpleshare.URLStrategy, error) {
	strategy, err := urlstrategy.NewURLStrategy(urlstrategy.Config{
		Type:         urlstrategy.StrategyType(c.URLStrategy),
		APIBaseURL:   c.APIBaseURL,
		CDNBaseURL:   c.CDNBaseURL,
		KeyGenerator: c.objectKeys(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build url strategy: %w", err)
	}
	return strategy, nil
}

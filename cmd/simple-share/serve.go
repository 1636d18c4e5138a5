package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-share/pkg/simpleshare/api"
	"github.com/tendant/simple-share/pkg/simpleshare/config"
	"github.com/tendant/simple-share/pkg/simpleshare/reaper"
)

var (
	servePort  string
	serveReap  bool
	serveNoLog bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveReap, "reap", false, "run the blob reaper inside the server process")
	serveCmd.Flags().BoolVar(&serveNoLog, "no-request-log", false, "disable per-request logging")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var extra []config.Option
	if servePort != "" {
		extra = append(extra, config.WithPort(servePort))
	}
	cfg, err := loadConfig(extra...)
	if err != nil {
		return err
	}
	if serveReap {
		cfg.Reaper.Enabled = true
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.BuildService(ctx, logger.Logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Error("failed to release backends", "error", err)
		}
	}()

	routes := api.RouterConfig{
		Service:     rt.Service,
		Limits:      rt.Limits,
		Logger:      logger.Logger,
		Metrics:     rt.Metrics,
		CORSOrigins: cfg.CORSOrigins,
	}
	if !serveNoLog {
		routes.RequestLogger = logger
	}
	if cfg.RateLimit.Enabled {
		release, err := configureLimiters(ctx, cfg, &routes, logger.Logger)
		if err != nil {
			return err
		}
		defer release()
	}

	if cfg.Reaper.Enabled {
		r := reaper.New(rt.Repository, rt.BlobStore, logger.Logger)
		opts := reaper.Options{BatchSize: cfg.Reaper.BatchSize, Grace: cfg.Reaper.Grace}
		go func() {
			if err := r.Run(ctx, cfg.Reaper.Interval, opts); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reaper stopped", "error", err)
			}
		}()
		logger.Info("reaper started", "interval", cfg.Reaper.Interval, "batch_size", cfg.Reaper.BatchSize)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

// configureLimiters installs Redis-backed limiters when REDIS_URL is set and
// per-process ones otherwise.
func configureLimiters(ctx context.Context, cfg *config.ServerConfig, routes *api.RouterConfig, logger *slog.Logger) (func(), error) {
	rl := cfg.RateLimit
	routes.APIWindow = rl.Window
	routes.CreateWindow = rl.CreateWindow

	if rl.RedisURL == "" {
		routes.APILimiter = api.NewMemoryLimiter(rl.Requests, rl.Window)
		routes.CreateLimiter = api.NewMemoryLimiter(rl.Creates, rl.CreateWindow)
		logger.Info("rate limiting enabled", "store", "memory", "requests", rl.Requests, "creates", rl.Creates)
		return func() {}, nil
	}

	client, err := api.NewRedisClient(rl.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		// The middleware fails open, so an unreachable Redis is not fatal.
		logger.Warn("redis not reachable, rate limiting degrades to allow", "error", err)
	}
	routes.APILimiter = api.NewRedisLimiter(client, "simpleshare:api", rl.Requests, rl.Window)
	routes.CreateLimiter = api.NewRedisLimiter(client, "simpleshare:create", rl.Creates, rl.CreateWindow)
	logger.Info("rate limiting enabled", "store", "redis", "requests", rl.Requests, "creates", rl.Creates)

	return func() { client.Close() }, nil
}

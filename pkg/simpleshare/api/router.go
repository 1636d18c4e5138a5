package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/metrics"
)

// RouterConfig wires the HTTP surface. Nil limiters, metrics or request
// logger switch that feature off.
type RouterConfig struct {
	Service simpleshare.Service
	Limits  simpleshare.Limits
	Logger  *slog.Logger

	RequestLogger *httplog.Logger
	Metrics       *metrics.Metrics
	CORSOrigins   []string

	APILimiter    Limiter
	APIWindow     time.Duration
	CreateLimiter Limiter
	CreateWindow  time.Duration
}

// NewRouter builds the chi router with every share route under /api
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.RequestLogger != nil {
		r.Use(httplog.RequestLogger(cfg.RequestLogger, []string{"/health"}))
	}
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	h := NewContentHandler(cfg.Service, cfg.Limits, logger)
	r.Route("/api", func(r chi.Router) {
		if cfg.APILimiter != nil {
			r.Use(RateLimit(cfg.APILimiter, cfg.APIWindow, logger))
		}

		if cfg.CreateLimiter != nil {
			r.With(RateLimit(cfg.CreateLimiter, cfg.CreateWindow, logger)).Post("/createContent", h.CreateContent)
		} else {
			r.Post("/createContent", h.CreateContent)
		}
		r.Get("/getContent/{key}", h.GetContent)
		r.Get("/readContent/{randomKey}", h.ReadContent)
		r.Delete("/delete/{key}", h.DeleteContent)
		r.Get("/download/{handle}", h.Download)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "Route not found")
	})
	return r
}

// Package metrics records bundle lifecycle and HTTP traffic in Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

const namespace = "simpleshare"

// Metrics holds the collectors. It implements simpleshare.EventSink.
type Metrics struct {
	BundlesCreated   prometheus.Counter
	BundlesRetrieved prometheus.Counter
	BundlesDeleted   prometheus.Counter
	Items            *prometheus.CounterVec
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		BundlesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_created_total",
			Help:      "Bundles created with at least one stored item.",
		}),
		BundlesRetrieved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_retrieved_total",
			Help:      "Successful bundle retrievals.",
		}),
		BundlesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_deleted_total",
			Help:      "Bundles deleted before expiry.",
		}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Submitted items by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.BundlesCreated,
		m.BundlesRetrieved,
		m.BundlesDeleted,
		m.Items,
		m.Requests,
		m.RequestDuration,
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) BundleCreated(ctx context.Context, result *simpleshare.CreateResult) error {
	m.BundlesCreated.Inc()
	for _, it := range result.Items {
		outcome := "stored"
		if !it.Stored {
			outcome = "failed"
		}
		m.Items.WithLabelValues(string(it.Kind), outcome).Inc()
	}
	return nil
}

func (m *Metrics) BundleRetrieved(ctx context.Context, bundle *simpleshare.Bundle) error {
	m.BundlesRetrieved.Inc()
	return nil
}

func (m *Metrics) BundleDeleted(ctx context.Context, key string) error {
	m.BundlesDeleted.Inc()
	return nil
}

// Middleware records request counts and latency labelled by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

var _ simpleshare.EventSink = (*Metrics)(nil)

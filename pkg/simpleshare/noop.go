package simpleshare

import (
	"context"
	"errors"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// BundleCreated does nothing and returns nil
func (n *NoopEventSink) BundleCreated(ctx context.Context, result *CreateResult) error {
	return nil
}

// BundleRetrieved does nothing and returns nil
func (n *NoopEventSink) BundleRetrieved(ctx context.Context, bundle *Bundle) error {
	return nil
}

// BundleDeleted does nothing and returns nil
func (n *NoopEventSink) BundleDeleted(ctx context.Context, key string) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action.
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// BundleCreated logs the creation event
func (l *LoggingEventSink) BundleCreated(ctx context.Context, result *CreateResult) error {
	l.logger.InfoContext(ctx, "bundle created",
		"key", result.Key,
		"expires_at", result.ExpiresAt,
		"items", len(result.Items),
		"stored", result.StoredCount())
	return nil
}

// BundleRetrieved logs the retrieval event
func (l *LoggingEventSink) BundleRetrieved(ctx context.Context, bundle *Bundle) error {
	l.logger.InfoContext(ctx, "bundle retrieved",
		"key", bundle.Key,
		"images", len(bundle.Images),
		"files", len(bundle.Files),
		"has_text", bundle.Text != nil)
	return nil
}

// BundleDeleted logs the deletion event
func (l *LoggingEventSink) BundleDeleted(ctx context.Context, key string) error {
	l.logger.InfoContext(ctx, "bundle deleted", "key", key)
	return nil
}

// MultiEventSink fans events out to several sinks. Every sink is called;
// their errors are joined.
type MultiEventSink []EventSink

// NewMultiEventSink combines sinks, skipping nil entries
func NewMultiEventSink(sinks ...EventSink) EventSink {
	m := make(MultiEventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m MultiEventSink) BundleCreated(ctx context.Context, result *CreateResult) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.BundleCreated(ctx, result))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) BundleRetrieved(ctx context.Context, bundle *Bundle) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.BundleRetrieved(ctx, bundle))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) BundleDeleted(ctx context.Context, key string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.BundleDeleted(ctx, key))
	}
	return errors.Join(errs...)
}

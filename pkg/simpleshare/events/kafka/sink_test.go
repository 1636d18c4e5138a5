package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	block  bool
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestSink_PublishesLifecycle(t *testing.T) {
	w := &fakeWriter{}
	sink := New(w)
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return fixed }
	ctx := context.Background()

	result := &simpleshare.CreateResult{
		Key:       "0412",
		ExpiresAt: fixed.Add(2 * time.Hour),
		Items:     []simpleshare.ItemOutcome{{Kind: simpleshare.KindText, Stored: true}},
	}
	require.NoError(t, sink.BundleCreated(ctx, result))
	require.NoError(t, sink.BundleRetrieved(ctx, &simpleshare.Bundle{Key: "0412", Kinds: []simpleshare.Kind{simpleshare.KindText}}))
	require.NoError(t, sink.BundleDeleted(ctx, "0412"))

	require.Len(t, w.msgs, 3)
	wantTypes := []string{EventBundleCreated, EventBundleRetrieved, EventBundleDeleted}
	for i, msg := range w.msgs {
		assert.Equal(t, "0412", string(msg.Key))

		var ev Event
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		assert.Equal(t, wantTypes[i], ev.Type)
		assert.True(t, fixed.Equal(ev.OccurredAt))
	}

	var created Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &created))
	require.NotNil(t, created.ExpiresAt)
	assert.True(t, result.ExpiresAt.Equal(*created.ExpiresAt))
	assert.Len(t, created.Items, 1)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestSink_WriteError(t *testing.T) {
	sink := New(&fakeWriter{err: errors.New("broker unavailable")})
	err := sink.BundleDeleted(context.Background(), "0001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EventBundleDeleted)
}

func TestSink_StalledBrokerIsBounded(t *testing.T) {
	sink := New(&fakeWriter{block: true})
	sink.timeout = 20 * time.Millisecond

	start := time.Now()
	err := sink.BundleCreated(context.Background(), &simpleshare.CreateResult{Key: "0001"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "share-events")
	assert.Equal(t, "share-events", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
}

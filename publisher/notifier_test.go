package publisher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maxpert/provision/cfg"
	"github.com/maxpert/provision/publisher"
	"github.com/maxpert/provision/publisher/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registeredMocks = map[string]*sink.MockSink{}

func init() {
	publisher.RegisterSink("mock", func(config cfg.NotifyConfiguration) (publisher.Sink, error) {
		m := &sink.MockSink{}
		registeredMocks[config.Name] = m
		return m, nil
	})
}

func fastNotifier(targets ...publisher.Target) *publisher.Notifier {
	n := publisher.NewNotifier(targets...)
	n.RetryInitial = time.Millisecond
	n.RetryMax = 2 * time.Millisecond
	return n
}

func mustFilter(t *testing.T, patterns ...string) publisher.Filter {
	t.Helper()
	f, err := publisher.NewGlobFilter(patterns)
	require.NoError(t, err)
	return f
}

func TestNotifier_PublishRoutesByFilter(t *testing.T) {
	all := &sink.MockSink{}
	impiOnly := &sink.MockSink{}
	n := fastNotifier(
		publisher.Target{Name: "all", Topic: "bulk", Sink: all},
		publisher.Target{Name: "impi", Sink: impiOnly, Filter: mustFilter(t, "impi")},
	)

	ctx := context.Background()
	require.NoError(t, n.Publish(ctx, publisher.Event{Kind: publisher.EventTableFinalized, Profile: "homestead-cache", Table: "impi", Rows: 2}))
	require.NoError(t, n.Publish(ctx, publisher.Event{Kind: publisher.EventTableFinalized, Profile: "homestead-cache", Table: "impu", Rows: 3}))
	require.NoError(t, n.Publish(ctx, publisher.Event{Kind: publisher.EventRunCompleted, Profile: "homestead-cache", Processed: 2}))

	require.Len(t, all.Messages, 3)
	assert.Equal(t, "bulk", all.Messages[0].Topic)
	assert.Equal(t, "homestead-cache/impi", all.Messages[0].Key)
	assert.Equal(t, "homestead-cache", all.Messages[2].Key)

	events, err := impiOnly.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "impi", events[0].Table)
	assert.Equal(t, int64(2), events[0].Rows)
	assert.Equal(t, publisher.EventRunCompleted, events[1].Kind)
	assert.Equal(t, publisher.DefaultTopic, impiOnly.Messages[0].Topic)
}

func TestNotifier_RetriesTransientFailures(t *testing.T) {
	flaky := &sink.MockSink{PublishErr: errors.New("broker unavailable"), FailFirst: 2}
	n := fastNotifier(publisher.Target{Name: "flaky", Sink: flaky})

	require.NoError(t, n.Publish(context.Background(), publisher.Event{Kind: publisher.EventRunCompleted, Profile: "homer"}))
	assert.Equal(t, 3, flaky.Attempts())
	assert.Len(t, flaky.Messages, 1)
}

func TestNotifier_GivesUpAfterMaxRetries(t *testing.T) {
	broken := &sink.MockSink{PublishErr: errors.New("broker unavailable")}
	healthy := &sink.MockSink{}
	n := fastNotifier(
		publisher.Target{Name: "broken", Sink: broken},
		publisher.Target{Name: "healthy", Sink: healthy},
	)
	n.MaxRetries = 3

	err := n.Publish(context.Background(), publisher.Event{Kind: publisher.EventRunCompleted, Profile: "homer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink broken")
	assert.Equal(t, 3, broken.Attempts())
	assert.Len(t, healthy.Messages, 1, "one failing sink does not block the others")
}

func TestNotifier_StopsOnCancel(t *testing.T) {
	broken := &sink.MockSink{PublishErr: errors.New("down")}
	n := publisher.NewNotifier(publisher.Target{Name: "broken", Sink: broken})
	n.RetryInitial = time.Hour
	n.MaxRetries = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Publish(ctx, publisher.Event{Kind: publisher.EventRunCompleted})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, broken.Attempts())
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *publisher.Notifier
	assert.NoError(t, n.Publish(context.Background(), publisher.Event{}))
	assert.NoError(t, n.Close())

	n, err := publisher.New(nil)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestNew_FromConfiguration(t *testing.T) {
	n, err := publisher.New([]cfg.NotifyConfiguration{
		{Name: "loader", Type: "mock", Topic: "bulk.ready", FilterTables: []string{"call_*"}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, n.Publish(ctx, publisher.Event{Kind: publisher.EventTableFinalized, Profile: "memento", Table: "call_lists"}))
	require.NoError(t, n.Publish(ctx, publisher.Event{Kind: publisher.EventTableFinalized, Profile: "homer", Table: "simservs"}))

	m := registeredMocks["loader"]
	require.NotNil(t, m)
	require.Len(t, m.Messages, 1)
	assert.Equal(t, "bulk.ready", m.Messages[0].Topic)

	require.NoError(t, n.Close())
	assert.True(t, m.Closed)
}

func TestNew_Errors(t *testing.T) {
	_, err := publisher.New([]cfg.NotifyConfiguration{{Name: "x", Type: "carrier-pigeon"}})
	assert.ErrorContains(t, err, "unknown sink type")

	_, err = publisher.New([]cfg.NotifyConfiguration{
		{Name: "ok", Type: "mock"},
		{Name: "bad", Type: "mock", FilterTables: []string{"[unclosed"}},
	})
	assert.Error(t, err)
	assert.True(t, registeredMocks["ok"].Closed, "sinks created before the failure are closed")
}

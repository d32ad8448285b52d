package sink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/provision/encoding"
	"github.com/maxpert/provision/publisher"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKafkaConfig(t *testing.T) {
	config := DefaultKafkaConfig([]string{"localhost:9092", "localhost:9093"})

	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, config.Brokers)
	assert.Equal(t, 1, config.BatchSize)
	assert.Equal(t, int64(1048576), config.BatchBytes)
	assert.Equal(t, kafka.RequireAll, config.RequiredAcks)
	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.True(t, config.AutoCreateTopics)
}

func TestNewKafkaSink(t *testing.T) {
	sink, err := NewKafkaSink(KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		BatchSize:    50,
		BatchBytes:   2048,
		RequiredAcks: kafka.RequireOne,
	})
	require.NoError(t, err)
	require.NotNil(t, sink.writer)

	assert.Equal(t, 50, sink.writer.BatchSize)
	assert.Equal(t, int64(2048), sink.writer.BatchBytes)
	assert.Equal(t, kafka.RequireOne, sink.writer.RequiredAcks)
	assert.False(t, sink.writer.Async, "notifications are written synchronously")
	assert.Equal(t, DefaultKafkaTimeout, sink.timeout)

	assert.NoError(t, sink.Close())
}

func TestNewKafkaSinkEmptyBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{})
	assert.Error(t, err)
}

func TestSanitizeStreamName(t *testing.T) {
	assert.Equal(t, "provision_events", sanitizeStreamName("provision.events"))
	assert.Equal(t, "a_b_c", sanitizeStreamName("a.b*c"))
	assert.Equal(t, "plain", sanitizeStreamName("plain"))
}

func TestMockSink_Publish(t *testing.T) {
	mock := &MockSink{}

	require.NoError(t, mock.Publish("test-topic", "key1", []byte("value1")))
	require.Len(t, mock.Messages, 1)

	msg := mock.Messages[0]
	assert.Equal(t, "test-topic", msg.Topic)
	assert.Equal(t, "key1", msg.Key)
	assert.Equal(t, []byte("value1"), msg.Value)
}

func TestMockSink_PublishError(t *testing.T) {
	expectedErr := errors.New("publish failed")
	mock := &MockSink{PublishErr: expectedErr}

	assert.ErrorIs(t, mock.Publish("t", "k", []byte("v")), expectedErr)
	assert.ErrorIs(t, mock.Publish("t", "k", []byte("v")), expectedErr)
	assert.Empty(t, mock.Messages)
	assert.Equal(t, 2, mock.Attempts())
}

func TestMockSink_FailFirst(t *testing.T) {
	mock := &MockSink{PublishErr: errors.New("flaky"), FailFirst: 2}

	assert.Error(t, mock.Publish("t", "k", nil))
	assert.Error(t, mock.Publish("t", "k", nil))
	assert.NoError(t, mock.Publish("t", "k", nil))
	assert.Len(t, mock.Messages, 1)
}

func TestMockSink_Events(t *testing.T) {
	mock := &MockSink{}
	data, err := encoding.Marshal(publisher.Event{Kind: publisher.EventRunCompleted, Profile: "homer", Processed: 3})
	require.NoError(t, err)
	require.NoError(t, mock.Publish("t", "homer", data))

	events, err := mock.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, publisher.EventRunCompleted, events[0].Kind)
	assert.Equal(t, int64(3), events[0].Processed)
}

func TestMockSink_ResetAndClose(t *testing.T) {
	mock := &MockSink{}
	mock.Publish("topic1", "key1", []byte("value1"))
	mock.Publish("topic2", "key2", []byte("value2"))
	require.Len(t, mock.Messages, 2)

	mock.Reset()
	assert.Empty(t, mock.Messages)
	assert.Zero(t, mock.Attempts())

	assert.NoError(t, mock.Close())
	assert.True(t, mock.Closed)
}

func TestMockSink_Concurrent(t *testing.T) {
	mock := &MockSink{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mock.Publish("topic", "key", []byte("value"))
		}()
	}
	wg.Wait()

	assert.Len(t, mock.Messages, 10)
}

package sink

import (
	"sync"

	"github.com/maxpert/provision/encoding"
	"github.com/maxpert/provision/publisher"
)

// MockSink records notifications in memory for tests
type MockSink struct {
	Messages   []MockMessage
	PublishErr error
	FailFirst  int // Fail this many publishes with PublishErr before succeeding, 0 = always fail when PublishErr is set
	Closed     bool

	attempts int
	mu       sync.Mutex
}

// MockMessage represents a published message for testing
type MockMessage struct {
	Topic string
	Key   string
	Value []byte
}

// Publish records a message for later inspection in tests
func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.PublishErr != nil && (m.FailFirst == 0 || m.attempts <= m.FailFirst) {
		return m.PublishErr
	}

	m.Messages = append(m.Messages, MockMessage{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	return nil
}

// Attempts returns how many times Publish was called
func (m *MockSink) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Events decodes every recorded message
func (m *MockSink) Events() ([]publisher.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]publisher.Event, 0, len(m.Messages))
	for _, msg := range m.Messages {
		var ev publisher.Event
		if err := encoding.Unmarshal(msg.Value, &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close marks the sink closed
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Reset clears all recorded messages
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
	m.attempts = 0
}

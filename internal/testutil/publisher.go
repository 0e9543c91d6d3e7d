package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// PublishedMessage is one message captured by MockPublisher.
type PublishedMessage struct {
	Topic     string
	Key       string
	Payload   any
	RawJSON   []byte
	Timestamp time.Time
}

// MockPublisher records every publish in memory. Set FailWith to make
// publishes fail.
type MockPublisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	failWith error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	m.messages = append(m.messages, PublishedMessage{
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		RawJSON:   raw,
		Timestamp: time.Now(),
	})
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockPublisher) Messages() []PublishedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PublishedMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *MockPublisher) ByTopic(topic string) []PublishedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PublishedMessage
	for _, msg := range m.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MockPublisher) ByKey(key string) []PublishedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PublishedMessage
	for _, msg := range m.messages {
		if msg.Key == key {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MockPublisher) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// AssertCount fails the test unless exactly expected messages went to topic.
func (m *MockPublisher) AssertCount(t *testing.T, topic string, expected int) {
	t.Helper()
	if got := len(m.ByTopic(topic)); got != expected {
		t.Errorf("expected %d messages on %q, got %d", expected, topic, got)
	}
}

// Decode unmarshals a captured message into dst.
func (msg PublishedMessage) Decode(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(msg.RawJSON, dst); err != nil {
		t.Fatalf("decode %s message: %v", msg.Topic, err)
	}
}

package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*NotificationEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*NotificationEvent, 0),
	}
}

// PublishNotification records the event and returns any configured error.
func (m *MockPublisher) PublishNotification(ctx context.Context, event *NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*NotificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*NotificationEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsForAddress returns events published for a specific wallet.
func (m *MockPublisher) GetPublishedEventsForAddress(address string) []*NotificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*NotificationEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Address == address {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishNotification.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// MockSubscriber delivers events pushed with Send to every open subscription.
type MockSubscriber struct {
	mu        sync.Mutex
	subs      map[chan *NotificationEvent]string
	subscribe error
}

// NewMockSubscriber creates a new mock subscriber for testing.
func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{subs: make(map[chan *NotificationEvent]string)}
}

// SetSubscribeError configures the mock to fail Subscribe.
func (m *MockSubscriber) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribe = err
}

func (m *MockSubscriber) Subscribe(ctx context.Context, address string) (<-chan *NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribe != nil {
		return nil, m.subscribe
	}

	ch := make(chan *NotificationEvent, 10)
	m.subs[ch] = address
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers returns the number of open subscriptions.
func (m *MockSubscriber) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Send delivers event to matching subscriptions without blocking.
func (m *MockSubscriber) Send(event *NotificationEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch, address := range m.subs {
		if address != "" && address != event.Address {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// Package notify holds the single user-facing notification shown by the
// dashboard and forwards each one to an optional publisher.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	natspkg "github.com/brojonat/mintdash/service/nats"
	"github.com/brojonat/mintdash/service/metrics"
	"github.com/google/uuid"
)

// Kind is the severity of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 5 * time.Second

// Notification is a transient message about an operation's outcome.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Publisher receives a copy of every notification.
type Publisher interface {
	PublishNotification(ctx context.Context, event *natspkg.NotificationEvent) error
}

// Sink keeps the latest notification until it expires.
type Sink struct {
	ttl       time.Duration
	publisher Publisher
	address   func() string
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	current *Notification
}

// Option configures a Sink.
type Option func(*Sink)

// WithPublisher forwards notifications to p. Publish failures are logged only.
func WithPublisher(p Publisher) Option {
	return func(s *Sink) { s.publisher = p }
}

// WithAddress sets the source of the session address attached to published events.
func WithAddress(fn func() string) Option {
	return func(s *Sink) { s.address = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// NewSink creates a sink. A non-positive ttl uses DefaultTTL.
func NewSink(ttl time.Duration, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Sink {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Sink{
		ttl:     ttl,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify replaces the current notification and returns it.
func (s *Sink) Notify(ctx context.Context, kind Kind, operation, message string) Notification {
	now := s.now().UTC()
	n := Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Operation: operation,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.current = &n
	s.mu.Unlock()

	s.metrics.RecordNotification(string(kind), operation)
	s.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"kind", kind,
		"operation", operation,
		"message", message,
	)

	if s.publisher != nil {
		event := &natspkg.NotificationEvent{
			ID:          n.ID,
			Kind:        string(n.Kind),
			Operation:   n.Operation,
			Message:     n.Message,
			CreatedAt:   n.CreatedAt,
			ExpiresAt:   n.ExpiresAt,
			PublishedAt: now,
		}
		if s.address != nil {
			event.Address = s.address()
		}
		if err := s.publisher.PublishNotification(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish notification",
				"id", n.ID,
				"error", err,
			)
		}
	}

	return n
}

// Current returns the live notification, or false once it has expired or
// none was ever set.
func (s *Sink) Current() (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil || !s.now().Before(s.current.ExpiresAt) {
		return Notification{}, false
	}
	return *s.current, true
}

// Dismiss clears the current notification.
func (s *Sink) Dismiss() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

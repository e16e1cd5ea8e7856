package nats

import (
	"time"
)

// NotificationEvent is a user-facing notification published to NATS.
// It is published to the subject "notifications.{address}" in JetStream.
type NotificationEvent struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`      // "success" or "error"
	Operation string `json:"operation"` // "create", "mint", "send", "session"
	Message   string `json:"message"`

	// Address is the session wallet the notification belongs to. Empty when
	// no wallet was connected.
	Address string `json:"address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// SubjectFor returns the subject a notification for address is published on.
func SubjectFor(address string) string {
	if address == "" {
		address = AnonymousAddress
	}
	return SubjectPrefix + address
}

package model

import "time"

// Notification represents an alert surfaced to the user about new
// activity in the mailbox (typically a newly arrived message).
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// EntityID links this notification to the originating mailbox item.
	EntityID string `json:"entity_id"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`
}

package model

import "time"

// EntityKind distinguishes the addressable mailbox item types.
type EntityKind string

const (
	KindEmail  EntityKind = "email"
	KindThread EntityKind = "thread"
)

// Category is the mailbox view an entity currently belongs to.
type Category string

const (
	CategoryInbox Category = "inbox"
	CategoryDone  Category = "done"
	CategorySent  Category = "sent"
	CategoryTrash Category = "trash"
)

// Field names the boolean status fields that user actions can override
// ahead of server confirmation.
type Field string

const (
	FieldRead    Field = "isRead"
	FieldDone    Field = "isDone"
	FieldDeleted Field = "isDeleted"
)

// Fields lists every overridable field, in a stable order.
var Fields = []Field{FieldRead, FieldDone, FieldDeleted}

// Entity is the unified representation of a mailbox item (email or thread)
// as last reported by the push source. The backend owns entity identity;
// the client never originates an ID.
type Entity struct {
	// ID is the stable, backend-assigned identifier.
	ID string `json:"id"`

	// ThreadID groups emails belonging to the same conversation.
	ThreadID string `json:"thread_id"`

	// Kind is either an individual email or a whole thread.
	Kind EntityKind `json:"kind"`

	// From is the display form of the sender address.
	From string `json:"from"`

	// Subject is the message or thread subject line.
	Subject string `json:"subject"`

	// Snippet is a short body preview for list rendering.
	Snippet string `json:"snippet"`

	// Category is the mailbox view this entity is filed under.
	Category Category `json:"category"`

	// Boolean status fields subject to optimistic override.
	IsRead    bool `json:"is_read"`
	IsDone    bool `json:"is_done"`
	IsDeleted bool `json:"is_deleted"`

	// ReceivedAt is when the message arrived at the mailbox.
	ReceivedAt time.Time `json:"received_at"`

	// UpdatedAt is when the entity last changed server-side.
	UpdatedAt time.Time `json:"updated_at"`

	// FetchedAt is when this snapshot was delivered to the client.
	FetchedAt time.Time `json:"fetched_at"`
}

// Flag returns the value of one of the overridable status fields.
func (e Entity) Flag(f Field) bool {
	switch f {
	case FieldRead:
		return e.IsRead
	case FieldDone:
		return e.IsDone
	case FieldDeleted:
		return e.IsDeleted
	}
	return false
}

// WithFlag returns a copy of the entity with one status field replaced.
func (e Entity) WithFlag(f Field, v bool) Entity {
	switch f {
	case FieldRead:
		e.IsRead = v
	case FieldDone:
		e.IsDone = v
	case FieldDeleted:
		e.IsDeleted = v
	}
	return e
}

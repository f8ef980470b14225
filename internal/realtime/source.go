// Package realtime wraps a push-based subscription to a filtered
// collection of mailbox entities. A subscription yields an initial full
// snapshot followed by an ordered stream of per-entity changes; the Hub
// bridges that stream into the Bubble Tea loop and keeps the local
// snapshot cache current.
package realtime

import (
	"context"

	"github.com/nhle/mailterm/internal/model"
)

// Filter is the predicate a subscription is scoped to.
type Filter struct {
	Category   model.Category
	UnreadOnly bool
}

// ChangeType tags a per-entity delta.
type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeRemoved
)

// String returns the wire-level tag for a change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	}
	return "unknown"
}

// Event is a single item in a subscription's ordered stream.
type Event interface {
	realtimeEvent()
}

// SnapshotEvent carries the full filtered entity set, authoritative as of
// its own delivery time. Delivered first on every (re)subscribe.
type SnapshotEvent struct {
	Entities []model.Entity
}

func (SnapshotEvent) realtimeEvent() {}

// ChangeEvent carries one delta with the entity's full current field set.
// For removals only the ID is meaningful.
type ChangeEvent struct {
	Type   ChangeType
	Entity model.Entity
}

func (ChangeEvent) realtimeEvent() {}

// DropEvent signals the transport lost the subscription. The Hub keeps
// existing overlays in place and resubscribes; it never assumes failure.
type DropEvent struct {
	Err error
}

func (DropEvent) realtimeEvent() {}

// Subscription is one live stream of events. Events are delivered in a
// single ordered stream; the channel closes when the subscription ends.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Source is the push transport contract. Implementations must deliver a
// SnapshotEvent before any ChangeEvent on each new subscription.
type Source interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

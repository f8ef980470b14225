package store

import (
	"context"

	"github.com/nhle/mailterm/internal/model"
)

// EntityFilter controls filtering, sorting, and pagination for cached
// entity queries.
type EntityFilter struct {
	Category *model.Category
	Unread   *bool
	Done     *bool
	Deleted  *bool
	Query    *string
	SortBy   string // "received_at", "updated_at", "from", "subject"
	SortDesc bool
	Limit    int
	Offset   int
}

// Store is the persistence interface for the local snapshot cache.
// The cache holds server truth only: overlays and deferred-queue state
// are presentation concerns and are never written here.
type Store interface {
	// === Entities ===

	UpsertEntities(ctx context.Context, entities []model.Entity) error
	GetEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error)
	GetEntityByID(ctx context.Context, id string) (*model.Entity, error)
	DeleteEntities(ctx context.Context, ids []string) error

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Package reconcile drains the gap between optimistic intent and eventual
// server truth. Each push-source delta is compared against the pending
// overrides for that entity: once the server reports the overridden value,
// the override has been caught up and is dropped. The transition is
// invisible because the projection already showed that value.
package reconcile

import (
	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/overlay"
)

// Reconciler clears overlays as authoritative snapshots confirm them.
// It processes deltas strictly in arrival order; callers must not feed it
// from more than one goroutine at a time for the same collection.
type Reconciler struct {
	overlays *overlay.Store
}

// New creates a reconciler over the given overlay store.
func New(o *overlay.Store) *Reconciler {
	return &Reconciler{overlays: o}
}

// Observe processes one authoritative entity snapshot. Every override
// whose value the server now reports is cleared; overrides the server has
// not caught up with stay in place. A concurrent actor writing a different
// value also leaves the override in place: these boolean fields get no
// cross-actor timestamp arbitration, the client's own write will clear it
// eventually or the next user action supersedes it.
func (r *Reconciler) Observe(e model.Entity) []model.Field {
	pending := r.overlays.Fields(e.ID)
	if len(pending) == 0 {
		return nil
	}

	var cleared []model.Field
	for field, want := range pending {
		if e.Flag(field) == want {
			r.overlays.Clear([]string{e.ID}, field)
			cleared = append(cleared, field)
		}
	}
	return cleared
}

// ObserveRemoved drops every override for an entity that left the
// subscribed set, so removals cannot leak overlay entries.
func (r *Reconciler) ObserveRemoved(id string) {
	r.overlays.ClearAll(id)
}

// ObserveSnapshot processes a full filtered snapshot: each present entity
// is reconciled, and overrides for entities no longer in the snapshot are
// dropped entirely.
func (r *Reconciler) ObserveSnapshot(entities []model.Entity) {
	present := make(map[string]bool, len(entities))
	for _, e := range entities {
		present[e.ID] = true
		r.Observe(e)
	}

	for _, id := range r.overlays.IDs() {
		if !present[id] {
			r.overlays.ClearAll(id)
		}
	}
}

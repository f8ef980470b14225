// Package overlay holds per-entity optimistic overrides of boolean status
// fields. An override exists only while the mutation that caused it is in
// flight; the reconciler removes it once the push source confirms the value,
// and the action dispatcher removes it on failure.
package overlay

import (
	gosync "sync"
	"time"

	"github.com/nhle/mailterm/internal/model"
)

// entry is one pending override for a single (entity, field) pair.
type entry struct {
	value     bool
	appliedAt time.Time
}

// Store records optimistic overrides and projects them over server
// snapshots. All mutation goes through Apply/Clear so that Project is
// consistent within a single synchronous turn.
type Store struct {
	mu      gosync.Mutex
	entries map[string]map[model.Field]entry
	now     func() time.Time
}

// New creates an empty overlay store.
func New() *Store {
	return &Store{
		entries: make(map[string]map[model.Field]entry),
		now:     time.Now,
	}
}

// Apply records an override for each id. Later calls for the same
// (id, field) win; mutations on these fields are idempotent set
// operations, never merges, so last-writer-wins is sound.
func (s *Store) Apply(ids []string, field model.Field, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	for _, id := range ids {
		fields, ok := s.entries[id]
		if !ok {
			fields = make(map[model.Field]entry)
			s.entries[id] = fields
		}
		fields[field] = entry{value: value, appliedAt: at}
	}
}

// Clear removes the override for each (id, field). Called by the
// reconciler when the server catches up, or by the dispatch path when a
// mutation fails and the UI must revert to server truth.
func (s *Store) Clear(ids []string, field model.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		fields, ok := s.entries[id]
		if !ok {
			continue
		}
		delete(fields, field)
		if len(fields) == 0 {
			delete(s.entries, id)
		}
	}
}

// ClearAll removes every override for an entity. Used when the entity
// leaves the subscribed set, so removed entities cannot leak entries.
func (s *Store) ClearAll(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Reset drops all overrides. Called on view teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]map[model.Field]entry)
}

// Get reports the pending override for (id, field), if any.
func (s *Store) Get(id string, field model.Field) (value bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id][field]
	return e.value, ok
}

// Fields returns a snapshot of the pending overrides for one entity.
func (s *Store) Fields(id string) map[model.Field]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.entries[id]
	if !ok {
		return nil
	}
	out := make(map[model.Field]bool, len(fields))
	for f, e := range fields {
		out[f] = e.value
	}
	return out
}

// IDs returns the ids of every entity with at least one pending override.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of entities with at least one pending override.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Project returns the effective entity: each overridden field takes the
// overlay value, every other field takes the server value. When no
// override exists for the entity the input is returned unchanged, so the
// result is referentially stable for untouched entities.
func (s *Store) Project(e model.Entity) model.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.entries[e.ID]
	if !ok {
		return e
	}
	for f, ov := range fields {
		e = e.WithFlag(f, ov.value)
	}
	return e
}

// ProjectAll maps Project over a snapshot slice.
func (s *Store) ProjectAll(entities []model.Entity) []model.Entity {
	out := make([]model.Entity, len(entities))
	for i, e := range entities {
		out[i] = s.Project(e)
	}
	return out
}

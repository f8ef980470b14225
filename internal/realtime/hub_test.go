package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/store"
)

// memStore is a mutex-guarded in-memory store.Store for hub tests.
type memStore struct {
	mu            sync.Mutex
	entities      map[string]model.Entity
	notifications []model.Notification
	entityQueries []store.EntityFilter
}

func newMemStore() *memStore {
	return &memStore{entities: make(map[string]model.Entity)}
}

func (m *memStore) UpsertEntities(_ context.Context, entities []model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		m.entities[e.ID] = e
	}
	return nil
}

func (m *memStore) GetEntities(_ context.Context, f store.EntityFilter) ([]model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entityQueries = append(m.entityQueries, f)
	out := make([]model.Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) GetEntityByID(_ context.Context, id string) (*model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entities[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memStore) DeleteEntities(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entities, id)
	}
	return nil
}

func (m *memStore) CreateNotification(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *memStore) GetUnreadNotifications(_ context.Context) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Read = true
		}
	}
	return nil
}

func (m *memStore) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entities[id]
	return ok
}

func (m *memStore) notificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

func (m *memStore) queriedFilters() []store.EntityFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.EntityFilter(nil), m.entityQueries...)
}

// fakeSub is a scripted subscription the test drives by hand.
type fakeSub struct {
	events chan Event
	filter Filter
	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) Events() <-chan Event { return s.events }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeSource hands out scripted subscriptions and records each
// Subscribe call on the subscribed channel.
type fakeSource struct {
	mu         sync.Mutex
	failRemain int
	subscribed chan *fakeSub
}

func newFakeSource() *fakeSource {
	return &fakeSource{subscribed: make(chan *fakeSub, 4)}
}

func (f *fakeSource) Subscribe(_ context.Context, filter Filter) (Subscription, error) {
	f.mu.Lock()
	if f.failRemain > 0 {
		f.failRemain--
		f.mu.Unlock()
		return nil, errors.New("transport unavailable")
	}
	f.mu.Unlock()

	sub := &fakeSub{events: make(chan Event, 16), filter: filter}
	f.subscribed <- sub
	return sub, nil
}

func awaitSub(t *testing.T, src *fakeSource) *fakeSub {
	t.Helper()
	select {
	case sub := <-src.subscribed:
		return sub
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for subscription")
		return nil
	}
}

func nextMsg(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func testEntity(id, subject string) model.Entity {
	return model.Entity{
		ID:       id,
		Kind:     model.KindEmail,
		Subject:  subject,
		Category: model.CategoryInbox,
	}
}

func TestHubDeliversSnapshotThenChanges(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	sub := awaitSub(t, src)

	msg := nextMsg(t, cmd)
	tm, ok := msg.(TransportMsg)
	if !ok || tm.State != TransportLive {
		t.Fatalf("first message = %#v, want live TransportMsg", msg)
	}

	sub.events <- SnapshotEvent{Entities: []model.Entity{
		testEntity("e1", "hello"),
		testEntity("e2", "world"),
	}}
	sub.events <- ChangeEvent{Type: ChangeModified, Entity: testEntity("e1", "hello again")}

	msg = nextMsg(t, hub.WaitForNextEvent())
	snap, ok := msg.(SnapshotMsg)
	if !ok {
		t.Fatalf("second message = %#v, want SnapshotMsg", msg)
	}
	if len(snap.Entities) != 2 {
		t.Fatalf("snapshot carried %d entities, want 2", len(snap.Entities))
	}
	if snap.NewCount != 2 {
		t.Fatalf("NewCount = %d, want 2", snap.NewCount)
	}

	msg = nextMsg(t, hub.WaitForNextEvent())
	change, ok := msg.(ChangeMsg)
	if !ok {
		t.Fatalf("third message = %#v, want ChangeMsg", msg)
	}
	if change.Type != ChangeModified || change.Entity.ID != "e1" {
		t.Fatalf("delta = %v %q, want modified e1", change.Type, change.Entity.ID)
	}
}

func TestHubWritesThroughToStore(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	sub := awaitSub(t, src)
	nextMsg(t, cmd) // live

	sub.events <- SnapshotEvent{Entities: []model.Entity{
		testEntity("e1", "one"),
		testEntity("e2", "two"),
	}}
	nextMsg(t, hub.WaitForNextEvent())

	if !ms.has("e1") || !ms.has("e2") {
		t.Fatalf("snapshot entities missing from cache")
	}
	if got := ms.notificationCount(); got != 2 {
		t.Fatalf("notifications = %d, want 2", got)
	}

	sub.events <- ChangeEvent{Type: ChangeRemoved, Entity: model.Entity{ID: "e2"}}
	nextMsg(t, hub.WaitForNextEvent())

	if ms.has("e2") {
		t.Fatalf("removed entity still in cache")
	}

	sub.events <- ChangeEvent{Type: ChangeAdded, Entity: testEntity("e3", "three")}
	nextMsg(t, hub.WaitForNextEvent())

	if !ms.has("e3") {
		t.Fatalf("added entity missing from cache")
	}
	if got := ms.notificationCount(); got != 3 {
		t.Fatalf("notifications = %d, want 3", got)
	}
}

func TestHubSecondSnapshotCountsOnlyUnseen(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	sub := awaitSub(t, src)
	nextMsg(t, cmd) // live

	sub.events <- SnapshotEvent{Entities: []model.Entity{testEntity("e1", "one")}}
	nextMsg(t, hub.WaitForNextEvent())

	sub.events <- SnapshotEvent{Entities: []model.Entity{
		testEntity("e1", "one"),
		testEntity("e2", "two"),
	}}
	msg := nextMsg(t, hub.WaitForNextEvent())
	snap := msg.(SnapshotMsg)
	if snap.NewCount != 1 {
		t.Fatalf("NewCount = %d, want 1", snap.NewCount)
	}
}

func TestHubResubscribesAfterDrop(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	first := awaitSub(t, src)
	nextMsg(t, cmd) // live

	first.events <- SnapshotEvent{Entities: []model.Entity{testEntity("e1", "one")}}
	nextMsg(t, hub.WaitForNextEvent())

	first.events <- DropEvent{Err: errors.New("stream reset")}

	msg := nextMsg(t, hub.WaitForNextEvent())
	tm, ok := msg.(TransportMsg)
	if !ok || tm.State != TransportReconnecting {
		t.Fatalf("after drop got %#v, want reconnecting TransportMsg", msg)
	}

	second := awaitSub(t, src)
	if second == first {
		t.Fatalf("hub reused the dropped subscription")
	}
	if !first.isClosed() {
		t.Fatalf("dropped subscription was not closed")
	}

	msg = nextMsg(t, hub.WaitForNextEvent())
	if tm, ok := msg.(TransportMsg); !ok || tm.State != TransportLive {
		t.Fatalf("after resubscribe got %#v, want live TransportMsg", msg)
	}

	second.events <- SnapshotEvent{Entities: []model.Entity{testEntity("e1", "one")}}
	msg = nextMsg(t, hub.WaitForNextEvent())
	if _, ok := msg.(SnapshotMsg); !ok {
		t.Fatalf("after resubscribe got %#v, want SnapshotMsg", msg)
	}
}

func TestHubKeepsOverlayStateOutOfDropHandling(t *testing.T) {
	// A drop must not delete cached entities; the next snapshot is the
	// only thing allowed to change the cache.
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	sub := awaitSub(t, src)
	nextMsg(t, cmd) // live

	sub.events <- SnapshotEvent{Entities: []model.Entity{testEntity("e1", "one")}}
	nextMsg(t, hub.WaitForNextEvent())

	sub.events <- DropEvent{Err: errors.New("stream reset")}
	nextMsg(t, hub.WaitForNextEvent()) // reconnecting

	if !ms.has("e1") {
		t.Fatalf("drop handling purged the cache")
	}
}

func TestHubSetFilterResubscribes(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	first := awaitSub(t, src)
	nextMsg(t, cmd) // live

	hub.SetFilter(Filter{Category: model.CategoryDone, UnreadOnly: true})

	second := awaitSub(t, src)
	if second.filter.Category != model.CategoryDone || !second.filter.UnreadOnly {
		t.Fatalf("resubscribed with filter %+v", second.filter)
	}
	if !first.isClosed() {
		t.Fatalf("old subscription left open after filter change")
	}
}

func TestHubReportsSubscribeFailure(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	src.failRemain = 1
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()

	msg := nextMsg(t, cmd)
	tm, ok := msg.(TransportMsg)
	if !ok || tm.State != TransportReconnecting {
		t.Fatalf("first message = %#v, want reconnecting TransportMsg", msg)
	}
	if tm.Err == nil {
		t.Fatalf("failure message carried no error")
	}

	// The retry succeeds after backoff.
	awaitSub(t, src)
	msg = nextMsg(t, hub.WaitForNextEvent())
	if tm, ok := msg.(TransportMsg); !ok || tm.State != TransportLive {
		t.Fatalf("after retry got %#v, want live TransportMsg", msg)
	}
	if hub.State() != TransportLive {
		t.Fatalf("State() = %v, want live", hub.State())
	}
}

func TestHubSeenScanIsUnpaginated(t *testing.T) {
	// New-mail detection compares the snapshot against every cached id;
	// a page limit would misread old mail as new once the cache outgrows
	// the page.
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	sub := awaitSub(t, src)
	nextMsg(t, cmd) // live

	sub.events <- SnapshotEvent{Entities: []model.Entity{testEntity("e1", "one")}}
	nextMsg(t, hub.WaitForNextEvent())

	filters := ms.queriedFilters()
	if len(filters) == 0 {
		t.Fatalf("snapshot persisted without a seen-id scan")
	}
	for _, f := range filters {
		if f.Limit != 0 || f.Offset != 0 {
			t.Fatalf("seen-id scan is paginated: %+v", f)
		}
	}
}

func TestHubRestartsAfterStop(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})
	t.Cleanup(hub.Stop)

	cmd := hub.Start()
	first := awaitSub(t, src)
	nextMsg(t, cmd) // live

	hub.Stop()

	// The stopped generation shuts its subscription down.
	deadline := time.Now().Add(2 * time.Second)
	for !first.isClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("subscription left open after Stop")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cmd = hub.Start()
	second := awaitSub(t, src)
	if second == first {
		t.Fatalf("restart reused the stopped subscription")
	}

	msg := nextMsg(t, cmd)
	if tm, ok := msg.(TransportMsg); !ok || tm.State != TransportLive {
		t.Fatalf("after restart got %#v, want live TransportMsg", msg)
	}

	second.events <- SnapshotEvent{Entities: []model.Entity{testEntity("e1", "one")}}
	msg = nextMsg(t, hub.WaitForNextEvent())
	if _, ok := msg.(SnapshotMsg); !ok {
		t.Fatalf("after restart got %#v, want SnapshotMsg", msg)
	}
}

func TestHubStopEndsDelivery(t *testing.T) {
	ms := newMemStore()
	src := newFakeSource()
	hub := NewHub(ms, src, Filter{})

	cmd := hub.Start()
	sub := awaitSub(t, src)
	nextMsg(t, cmd) // live

	hub.Stop()

	if msg := nextMsg(t, hub.WaitForNextEvent()); msg != nil {
		t.Fatalf("after Stop got %#v, want nil", msg)
	}

	// The subscription goroutine shuts down and closes its end.
	deadline := time.Now().Add(2 * time.Second)
	for !sub.isClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("subscription left open after Stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

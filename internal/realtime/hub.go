package realtime

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/store"
)

// TransportState describes the health of the push subscription.
type TransportState int

const (
	TransportLive TransportState = iota
	TransportReconnecting
	TransportDown
)

// SnapshotMsg is a tea.Msg carrying a full filtered snapshot.
type SnapshotMsg struct {
	Entities []model.Entity
	NewCount int
}

// ChangeMsg is a tea.Msg carrying one ordered delta.
type ChangeMsg struct {
	Type   ChangeType
	Entity model.Entity
}

// TransportMsg is a tea.Msg reporting subscription health transitions.
type TransportMsg struct {
	State TransportState
	Err   error
}

// storeTimeout caps each cache write triggered by an incoming event.
const storeTimeout = 10 * time.Second

// downAfter is the number of consecutive failed (re)subscription attempts
// before the Hub escalates to a user-visible "can't load mailbox" state.
// It keeps retrying in the background regardless.
const downAfter = 3

// Hub owns the push subscription for the mounted collection view. It is
// safe to Start more than once: concurrent starts are deduplicated
// internally rather than guarded by ambient flags, and a stopped Hub can
// be started again.
type Hub struct {
	store  store.Store
	source Source

	resultCh chan tea.Msg
	filterCh chan Filter
	stopCh   chan struct{}

	mu      gosync.Mutex
	filter  Filter
	state   TransportState
	running bool
}

// NewHub creates a Hub over the given snapshot cache and push source.
func NewHub(s store.Store, src Source, f Filter) *Hub {
	return &Hub{
		store:    s,
		source:   src,
		filter:   f,
		resultCh: make(chan tea.Msg, 16),
		filterCh: make(chan Filter, 1),
		stopCh:   make(chan struct{}),
		state:    TransportReconnecting,
	}
}

// Start launches the subscription goroutine and returns a command that
// waits for the first event. Calling Start on a running Hub just returns
// a fresh wait command; calling it after Stop opens a new subscription.
func (h *Hub) Start() tea.Cmd {
	h.mu.Lock()
	if !h.running {
		h.running = true
		// Each run gets its own stop channel so a restart is not poisoned
		// by the previous generation's closed one.
		h.stopCh = make(chan struct{})
		h.drainLocked()
		go h.run(h.stopCh)
	}
	h.mu.Unlock()

	return h.waitForEvent()
}

// drainLocked discards messages left over from a previous run so that a
// restart begins cleanly with the new subscription's snapshot.
func (h *Hub) drainLocked() {
	for {
		select {
		case <-h.resultCh:
		case <-h.filterCh:
		default:
			return
		}
	}
}

// Stop tears the subscription down. No events are delivered afterwards.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	close(h.stopCh)
	h.running = false
}

// SetFilter switches the subscription predicate. The current subscription
// is closed and a new one opened; the next event is the new snapshot.
func (h *Hub) SetFilter(f Filter) {
	h.mu.Lock()
	h.filter = f
	h.mu.Unlock()

	// Coalesce: only the latest pending filter change matters.
	select {
	case <-h.filterCh:
	default:
	}
	h.filterCh <- f
}

// State returns the current transport health for header rendering.
func (h *Hub) State() TransportState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// WaitForNextEvent returns a tea.Cmd that waits for the next push event.
// Call it again after each delivered message to keep listening.
func (h *Hub) WaitForNextEvent() tea.Cmd {
	return h.waitForEvent()
}

func (h *Hub) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		h.mu.Lock()
		stop := h.stopCh
		h.mu.Unlock()

		select {
		case msg := <-h.resultCh:
			return msg
		case <-stop:
			return nil
		}
	}
}

// run is the subscription loop: subscribe, drain events in order, and
// resubscribe with backoff when the transport drops. stop belongs to this
// run only.
func (h *Hub) run(stop chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	failures := 0
	backoff := time.Second

	for {
		select {
		case <-stop:
			return
		default:
		}

		h.mu.Lock()
		filter := h.filter
		h.mu.Unlock()

		sub, err := h.source.Subscribe(ctx, filter)
		if err != nil {
			failures++
			state := TransportReconnecting
			if failures >= downAfter {
				state = TransportDown
			}
			h.setState(state)
			h.send(TransportMsg{State: state, Err: fmt.Errorf("subscribing: %w", err)}, stop)

			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}

		failures = 0
		backoff = time.Second
		h.setState(TransportLive)
		h.send(TransportMsg{State: TransportLive}, stop)

		if !h.consume(sub, stop) {
			return
		}
	}
}

// consume drains one subscription until it drops or the filter changes.
// Returns false when the Hub is stopping.
func (h *Hub) consume(sub Subscription, stop chan struct{}) bool {
	defer sub.Close()

	for {
		select {
		case <-stop:
			return false

		case <-h.filterCh:
			// Resubscribe under the new predicate.
			return true

		case ev, ok := <-sub.Events():
			if !ok {
				h.setState(TransportReconnecting)
				h.send(TransportMsg{State: TransportReconnecting}, stop)
				return true
			}

			switch ev := ev.(type) {
			case SnapshotEvent:
				newCount := h.persistSnapshot(ev.Entities)
				h.send(SnapshotMsg{Entities: ev.Entities, NewCount: newCount}, stop)

			case ChangeEvent:
				h.persistChange(ev)
				h.send(ChangeMsg{Type: ev.Type, Entity: ev.Entity}, stop)

			case DropEvent:
				h.setState(TransportReconnecting)
				h.send(TransportMsg{State: TransportReconnecting, Err: ev.Err}, stop)
				return true
			}
		}
	}
}

// send delivers a message to the Bubble Tea side. Deltas must stay
// ordered, so this blocks until the loop drains rather than dropping.
func (h *Hub) send(msg tea.Msg, stop chan struct{}) {
	select {
	case h.resultCh <- msg:
	case <-stop:
	}
}

func (h *Hub) setState(s TransportState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// persistSnapshot writes the snapshot through to the cache and creates
// notifications for entities seen for the first time. Returns the number
// of new entities.
func (h *Hub) persistSnapshot(entities []model.Entity) int {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var newIDs map[string]bool
	if len(entities) > 0 {
		// Unbounded on purpose: a pagination limit here would misread old
		// cached mail as new and re-notify for it.
		existing, _ := h.store.GetEntities(ctx, store.EntityFilter{})
		existingIDs := make(map[string]bool, len(existing))
		for _, e := range existing {
			existingIDs[e.ID] = true
		}
		newIDs = make(map[string]bool)
		for _, e := range entities {
			if !existingIDs[e.ID] {
				newIDs[e.ID] = true
			}
		}
	}

	if len(entities) > 0 {
		if err := h.store.UpsertEntities(ctx, entities); err != nil {
			return 0
		}
	}

	for _, e := range entities {
		if !newIDs[e.ID] {
			continue
		}
		_ = h.store.CreateNotification(ctx, model.Notification{
			ID:        uuid.New().String(),
			EntityID:  e.ID,
			Message:   fmt.Sprintf("New mail: %s", e.Subject),
			CreatedAt: time.Now(),
		})
	}

	return len(newIDs)
}

// persistChange applies one delta to the cache.
func (h *Hub) persistChange(ev ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch ev.Type {
	case ChangeRemoved:
		_ = h.store.DeleteEntities(ctx, []string{ev.Entity.ID})
	default:
		_ = h.store.UpsertEntities(ctx, []model.Entity{ev.Entity})
		if ev.Type == ChangeAdded {
			_ = h.store.CreateNotification(ctx, model.Notification{
				ID:        uuid.New().String(),
				EntityID:  ev.Entity.ID,
				Message:   fmt.Sprintf("New mail: %s", ev.Entity.Subject),
				CreatedAt: time.Now(),
			})
		}
	}
}

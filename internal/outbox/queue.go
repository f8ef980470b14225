// Package outbox manages timed, cancellable pending actions: outbound
// sends racing a server-side grace window, and local undo toasts whose
// mutation is only dispatched once the window expires. Countdowns are
// recomputed from the wall clock, never from tick counts, so delayed
// timers (a backgrounded terminal, a starved event loop) can never cause
// premature commit reporting.
package outbox

import (
	gosync "sync"
	"time"
)

// Status is the lifecycle state of one deferred action.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaused     Status = "paused"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCommitted  Status = "committed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCommitted || s == StatusError
}

// Strategy selects how an entry's commit happens.
type Strategy string

const (
	// StrategyClientDeferred holds the real mutation client-side until the
	// window expires; cancel never touches the network.
	StrategyClientDeferred Strategy = "client-deferred"

	// StrategyServerDeferred means the backend already scheduled the
	// action; expiry is a local, optimistic signal and cancel is a request
	// racing the server's own deadline.
	StrategyServerDeferred Strategy = "server-deferred"
)

// Entry configures one deferred action when it is enqueued.
type Entry struct {
	// ID identifies the action (the backend send id, or a client-generated
	// id for client-deferred undo toasts).
	ID string

	// Label is the human-readable description rendered in the toast.
	Label string

	Strategy Strategy

	// Window is the grace period during which the action may be cancelled.
	Window time.Duration

	// Commit runs when a client-deferred entry's window expires. Unused
	// for server-deferred entries.
	Commit func()

	// Rollback runs when a client-deferred entry is cancelled, reverting
	// the optimistic local effect. Unused for server-deferred entries.
	Rollback func()
}

// View is the read-only tuple the toast surface consumes.
type View struct {
	ID          string
	Label       string
	Status      Status
	RemainingMs int64
}

// record is the queue's mutable state for one entry.
type record struct {
	Entry
	status    Status
	createdAt time.Time
	startedAt time.Time     // start of the current countdown segment
	elapsed   time.Duration // accumulated across earlier segments
	order     int
}

// remaining computes the budget left at time now from wall-clock elapsed
// time. Paused and terminal entries do not consume budget.
func (r *record) remaining(now time.Time) time.Duration {
	elapsed := r.elapsed
	if r.status == StatusPending {
		elapsed += now.Sub(r.startedAt)
	}
	left := r.Window - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// freeze accumulates the running segment so the countdown stops.
func (r *record) freeze(now time.Time) {
	if r.status == StatusPending {
		r.elapsed += now.Sub(r.startedAt)
	}
}

// Expired describes an entry whose window just ran out.
type Expired struct {
	ID       string
	Strategy Strategy

	// Commit is the stored commit hook for client-deferred entries,
	// nil otherwise.
	Commit func()
}

// CancelDecision tells the caller what a cancel attempt requires next.
type CancelDecision int

const (
	// CancelDone: the entry is fully cancelled (client-deferred path, or
	// nothing to do). No network follow-up.
	CancelDone CancelDecision = iota

	// CancelNeedsRemote: the entry entered cancelling and the caller must
	// issue the backend cancel request, then report via ResolveCancel.
	CancelNeedsRemote

	// CancelTooLate: the window had already expired; the entry is in
	// error, and the UI must not claim the action was stopped.
	CancelTooLate
)

// Queue is the deferred-commit queue. It owns no goroutines and no
// timers: the view driving it calls Advance on a coarse tick and reads
// countdowns via Entries, which recomputes from the wall clock.
type Queue struct {
	mu      gosync.Mutex
	records map[string]*record
	nextOrd int
	now     func() time.Time
}

// New creates an empty queue using the system clock.
func New() *Queue {
	return NewWithClock(time.Now)
}

// NewWithClock creates a queue with an injected clock for tests.
func NewWithClock(now func() time.Time) *Queue {
	return &Queue{
		records: make(map[string]*record),
		now:     now,
	}
}

// Enqueue registers a new pending entry with its countdown running.
// Enqueueing an id that already exists replaces the old entry.
func (q *Queue) Enqueue(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.records[e.ID] = &record{
		Entry:     e,
		status:    StatusPending,
		createdAt: now,
		startedAt: now,
		order:     q.nextOrd,
	}
	q.nextOrd++
}

// Pause stops the countdown for an entry (e.g. while the user hovers the
// toast), preserving the remaining budget exactly.
func (q *Queue) Pause(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[id]
	if !ok || r.status != StatusPending {
		return
	}
	r.freeze(q.now())
	r.status = StatusPaused
}

// Resume restarts a paused countdown from where it stopped.
func (q *Queue) Resume(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[id]
	if !ok || r.status != StatusPaused {
		return
	}
	r.startedAt = q.now()
	r.status = StatusPending
}

// Cancel attempts to stop an entry before it commits.
//
// While the window is open, a client-deferred entry is cancelled
// immediately (its Rollback hook runs; the backend was never involved),
// and a server-deferred entry moves to cancelling pending the backend's
// answer. After expiry the only honest outcome is error: the action
// likely already took effect.
func (q *Queue) Cancel(id string) CancelDecision {
	q.mu.Lock()

	r, ok := q.records[id]
	if !ok || r.status.Terminal() || r.status == StatusCancelling {
		q.mu.Unlock()
		return CancelDone
	}

	now := q.now()
	if r.remaining(now) <= 0 {
		r.freeze(now)
		r.status = StatusError
		q.mu.Unlock()
		return CancelTooLate
	}

	r.freeze(now)
	if r.Strategy != StrategyClientDeferred {
		r.status = StatusCancelling
		q.mu.Unlock()
		return CancelNeedsRemote
	}

	r.status = StatusCancelled
	rollback := r.Rollback
	q.mu.Unlock()

	// Run outside the lock; the hook clears overlay state and may call
	// back into queue accessors.
	if rollback != nil {
		rollback()
	}
	return CancelDone
}

// ResolveCancel records the backend's answer to a remote cancel request.
// raceLost marks the cancel-after-commit outcome (terminal error state);
// transient=true puts the entry back into pending so the user may retry,
// with the countdown resumed.
func (q *Queue) ResolveCancel(id string, raceLost, transient bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[id]
	if !ok || r.status != StatusCancelling {
		return
	}

	switch {
	case raceLost:
		r.status = StatusError
	case transient:
		r.startedAt = q.now()
		r.status = StatusPending
	default:
		r.status = StatusCancelled
	}
}

// Advance transitions every pending entry whose window has run out to
// committed and returns them, client-deferred commit hooks included, so
// the caller can dispatch the held mutations. For server-deferred entries
// committed is an optimistic local signal: the backend executes on its
// own schedule at or near the same deadline.
func (q *Queue) Advance() []Expired {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var expired []Expired
	for _, r := range q.records {
		if r.status != StatusPending || r.remaining(now) > 0 {
			continue
		}
		r.freeze(now)
		r.status = StatusCommitted
		exp := Expired{ID: r.ID, Strategy: r.Strategy}
		if r.Strategy == StrategyClientDeferred {
			exp.Commit = r.Commit
		}
		expired = append(expired, exp)
	}
	return expired
}

// Status returns the current status of an entry.
func (q *Queue) Status(id string) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[id]
	if !ok {
		return "", false
	}
	return r.status, true
}

// Remaining returns the milliseconds left in an entry's window.
func (q *Queue) Remaining(id string) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[id]
	if !ok {
		return 0, false
	}
	return r.remaining(q.now()).Milliseconds(), true
}

// Entries returns the toast views in enqueue order.
func (q *Queue) Entries() []View {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	views := make([]View, 0, len(q.records))
	for _, r := range q.records {
		views = append(views, View{
			ID:          r.ID,
			Label:       r.Label,
			Status:      r.status,
			RemainingMs: r.remaining(now).Milliseconds(),
		})
	}
	// Insertion-order sort; the map is small.
	for i := 1; i < len(views); i++ {
		for j := i; j > 0 && q.records[views[j-1].ID].order > q.records[views[j].ID].order; j-- {
			views[j-1], views[j] = views[j], views[j-1]
		}
	}
	return views
}

// Discard removes one entry, typically a dismissed terminal toast.
func (q *Queue) Discard(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.records, id)
}

// DiscardAll drops every entry. Called when the owning view unmounts; no
// countdown work continues for views the user navigated away from.
func (q *Queue) DiscardAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = make(map[string]*record)
}

// Len returns the number of live entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nhle/mailterm/internal/backend"
	"github.com/nhle/mailterm/internal/dispatch"
	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/outbox"
	"github.com/nhle/mailterm/internal/ui/detail"
)

// mutationTimeout caps one dispatched mutation round trip.
const mutationTimeout = 30 * time.Second

// mutationResultMsg reports the outcome of a dispatched mutation so the
// overlay can be settled or rolled back.
type mutationResultMsg struct {
	ids    []string
	field  model.Field
	result backend.BatchResult
	err    error
}

// sendCreatedMsg reports the backend's receipt for a scheduled send.
type sendCreatedMsg struct {
	payload backend.SendPayload
	receipt *backend.SendReceipt
	err     error
}

// cancelResultMsg reports the outcome of a server-side cancel attempt.
type cancelResultMsg struct {
	id  string
	err error
}

// applyOptimistic writes the override, marks the rows in flight, and
// dispatches the mutation.
func (m Model) applyOptimistic(
	ids []string, field model.Field, value bool,
) (Model, tea.Cmd) {
	action, err := dispatch.ActionFor(field, value)
	if err != nil {
		return m, nil
	}

	m.overlays.Apply(ids, field, value)
	for _, id := range ids {
		m.mailList.SetPending(id, true)
	}

	return m, tea.Batch(
		m.mailList.LoadEntities(),
		m.refreshOpenDetail(),
		m.dispatchCmd(dispatch.Mutation{Action: action, IDs: ids}),
	)
}

// dispatchCmd sends one mutation to the backend off the UI loop.
func (m Model) dispatchCmd(mut dispatch.Mutation) tea.Cmd {
	d := m.dispatcher
	field := fieldForAction(mut.Action)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()

		result, err := d.Dispatch(ctx, mut)
		return mutationResultMsg{
			ids:    mut.IDs,
			field:  field,
			result: result,
			err:    err,
		}
	}
}

// fieldForAction maps a backend action back to the overlay field it
// settles.
func fieldForAction(a backend.Action) model.Field {
	switch a {
	case backend.ActionMarkDone, backend.ActionMarkOpen:
		return model.FieldDone
	case backend.ActionDelete, backend.ActionRestore:
		return model.FieldDeleted
	default:
		return model.FieldRead
	}
}

// handleMutationResult settles or rolls back overrides after a dispatch.
// Overrides for successful ids stay in place until the push source
// confirms the new value; failed ids revert immediately.
func (m Model) handleMutationResult(msg mutationResultMsg) (tea.Model, tea.Cmd) {
	for _, id := range msg.ids {
		m.mailList.SetPending(id, false)
	}

	if msg.err != nil {
		m.overlays.Clear(msg.ids, msg.field)
		if backend.IsAuthError(msg.err) {
			m.authErrorMessage = "Authentication failed — update your API token in settings"
		}
		m.toasts.NotifyError(fmt.Sprintf("Change failed: %v", msg.err))
		return m, tea.Batch(m.mailList.LoadEntities(), m.refreshOpenDetail())
	}

	if len(msg.result.FailedIDs) > 0 {
		m.overlays.Clear(msg.result.FailedIDs, msg.field)
		m.toasts.NotifyError(fmt.Sprintf(
			"%d of %d changes failed", msg.result.FailedCount,
			msg.result.FailedCount+msg.result.SuccessCount,
		))
	}
	m.authErrorMessage = ""

	return m, tea.Batch(m.mailList.LoadEntities(), m.refreshOpenDetail())
}

// mutationTargets resolves a list mutation to the marked set when one
// exists, falling back to the focused row. Marks are consumed: the
// caller clears them once the mutation is on its way.
func (m Model) mutationTargets() []model.Entity {
	if marked := m.mailList.MarkedEntities(); len(marked) > 0 {
		return marked
	}
	if e, ok := m.mailList.SelectedEntity(); ok {
		return []model.Entity{e}
	}
	return nil
}

func entityIDs(entities []model.Entity) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

// toggleReadSelected flips the read flag of the targeted messages based
// on their projected values, so repeated presses alternate as displayed.
// A mixed marked set normalizes toward read.
func (m Model) toggleReadSelected() (Model, tea.Cmd) {
	targets := m.mutationTargets()
	if len(targets) == 0 {
		return m, nil
	}

	value := false
	for _, e := range targets {
		if !e.IsRead {
			value = true
			break
		}
	}

	m.mailList.ClearMarked()
	return m.applyOptimistic(entityIDs(targets), model.FieldRead, value)
}

// markDoneSelected marks the targeted messages done optimistically and
// holds the real mutation behind an undo window.
func (m Model) markDoneSelected() (Model, tea.Cmd) {
	var pending []model.Entity
	for _, e := range m.mutationTargets() {
		if !e.IsDone {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return m, nil
	}

	label := pending[0].Subject
	if len(pending) > 1 {
		label = fmt.Sprintf("%d messages", len(pending))
	}

	m.mailList.ClearMarked()
	return m.enqueueDone(entityIDs(pending), label)
}

// enqueueDone applies the done override now and defers the mutation
// until the undo window closes. Cancelling reverts locally with no
// network traffic.
func (m Model) enqueueDone(ids []string, label string) (Model, tea.Cmd) {
	m.overlays.Apply(ids, model.FieldDone, true)

	entryID := uuid.New().String()
	window := time.Duration(m.cfg.Undo.DoneWindowMs) * time.Millisecond
	overlays := m.overlays

	m.pendingCommits[entryID] = dispatch.Mutation{
		Action: backend.ActionMarkDone,
		IDs:    ids,
	}
	m.queue.Enqueue(outbox.Entry{
		ID:       entryID,
		Label:    fmt.Sprintf("Marked done: %s", truncateLabel(label)),
		Strategy: outbox.StrategyClientDeferred,
		Window:   window,
		Rollback: func() {
			overlays.Clear(ids, model.FieldDone)
		},
	})

	m.toasts.SetPending(m.queue.Entries())
	return m, tea.Batch(m.mailList.LoadEntities(), m.refreshOpenDetail())
}

// deleteSelected deletes the targeted messages optimistically; the
// mutation goes out immediately. When every target is already in the
// trash the press restores instead.
func (m Model) deleteSelected() (Model, tea.Cmd) {
	targets := m.mutationTargets()
	if len(targets) == 0 {
		return m, nil
	}

	value := false
	for _, e := range targets {
		if !e.IsDeleted {
			value = true
			break
		}
	}

	m.mailList.ClearMarked()
	return m.applyOptimistic(entityIDs(targets), model.FieldDeleted, value)
}

// handleDetailAction routes mutation keys pressed in the message view.
func (m Model) handleDetailAction(msg detail.ActionMsg) (tea.Model, tea.Cmd) {
	e := m.detailView.Entity()
	if e == nil || e.ID != msg.EntityID {
		return m, nil
	}

	switch msg.Action {
	case "toggle-read":
		return m.applyOptimistic([]string{e.ID}, model.FieldRead, !e.IsRead)
	case "done":
		if e.IsDone {
			return m, nil
		}
		return m.enqueueDone([]string{e.ID}, e.Subject)
	case "delete":
		return m.applyOptimistic([]string{e.ID}, model.FieldDeleted, !e.IsDeleted)
	}
	return m, nil
}

// createSend asks the backend to schedule the email with the configured
// undo offset.
func (m Model) createSend(payload backend.SendPayload) tea.Cmd {
	api := m.api
	offsetMs := m.cfg.Undo.SendWindowMs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()

		receipt, err := api.CreateSend(ctx, payload, offsetMs)
		return sendCreatedMsg{payload: payload, receipt: receipt, err: err}
	}
}

// handleSendCreated enqueues the undo toast for a scheduled send.
func (m Model) handleSendCreated(msg sendCreatedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.toasts.NotifyError(fmt.Sprintf("Send failed: %v", msg.err))
		return m, nil
	}

	label := "Email sent"
	if len(msg.payload.To) > 0 {
		label = fmt.Sprintf("Email to %s", msg.payload.To[0])
	}

	window := time.Duration(m.cfg.Undo.SendWindowMs) * time.Millisecond
	if msg.receipt.CanUndo {
		m.queue.Enqueue(outbox.Entry{
			ID:       msg.receipt.ID,
			Label:    label,
			Strategy: outbox.StrategyServerDeferred,
			Window:   window,
		})
		m.toasts.SetPending(m.queue.Entries())
	} else {
		m.toasts.Notify(label)
	}
	return m, nil
}

// cancelNewest cancels the most recently enqueued live entry.
func (m Model) cancelNewest() (Model, tea.Cmd) {
	id, ok := m.newestLive()
	if !ok {
		return m, nil
	}

	switch m.queue.Cancel(id) {
	case outbox.CancelDone:
		// Client-deferred: the rollback hook already reverted the overlay.
		delete(m.pendingCommits, id)
		m.toasts.SetPending(m.queue.Entries())
		m.toasts.Notify("Undone")
		return m, tea.Batch(m.mailList.LoadEntities(), m.refreshOpenDetail())

	case outbox.CancelNeedsRemote:
		m.toasts.SetPending(m.queue.Entries())
		return m, m.cancelSend(id)

	case outbox.CancelTooLate:
		m.toasts.SetPending(m.queue.Entries())
		m.toasts.NotifyError("Couldn't cancel — may have already been sent")
		return m, nil
	}
	return m, nil
}

// cancelSend races the backend's scheduled commit.
func (m Model) cancelSend(id string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()

		err := api.CancelSend(ctx, id)
		return cancelResultMsg{id: id, err: err}
	}
}

// handleCancelResult resolves a cancelling entry. Losing the race is
// final; transient failures resume the countdown for another attempt.
func (m Model) handleCancelResult(msg cancelResultMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		m.queue.ResolveCancel(msg.id, false, false)
		m.toasts.Notify("Email cancelled")

	case backend.IsCancelRace(msg.err):
		m.queue.ResolveCancel(msg.id, true, false)
		m.toasts.NotifyError("Couldn't cancel — may have already been sent")

	default:
		m.queue.ResolveCancel(msg.id, false, true)
		m.toasts.NotifyError("Cancel didn't go through — try again")
	}

	m.toasts.SetPending(m.queue.Entries())
	return m, nil
}

// pauseNewest freezes the newest live countdown.
func (m *Model) pauseNewest() {
	if id, ok := m.newestLive(); ok {
		m.queue.Pause(id)
		m.toasts.SetPending(m.queue.Entries())
	}
}

// resumeNewest restarts the newest paused countdown.
func (m *Model) resumeNewest() {
	if id, ok := m.newestPaused(); ok {
		m.queue.Resume(id)
		m.toasts.SetPending(m.queue.Entries())
	}
}

func (m Model) newestLive() (string, bool) {
	entries := m.queue.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		s := entries[i].Status
		if s == outbox.StatusPending || s == outbox.StatusPaused {
			return entries[i].ID, true
		}
	}
	return "", false
}

func (m Model) newestPaused() (string, bool) {
	entries := m.queue.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Status == outbox.StatusPaused {
			return entries[i].ID, true
		}
	}
	return "", false
}

func truncateLabel(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > 40 {
		return string(runes[:39]) + "…"
	}
	return s
}

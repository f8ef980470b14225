package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailterm/internal/backend"
	"github.com/nhle/mailterm/internal/dispatch"
	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/outbox"
	"github.com/nhle/mailterm/internal/overlay"
	"github.com/nhle/mailterm/internal/realtime"
	"github.com/nhle/mailterm/internal/reconcile"
	"github.com/nhle/mailterm/internal/store"
	"github.com/nhle/mailterm/internal/ui"
	"github.com/nhle/mailterm/internal/ui/command"
	"github.com/nhle/mailterm/internal/ui/compose"
	"github.com/nhle/mailterm/internal/ui/detail"
	helpview "github.com/nhle/mailterm/internal/ui/help"
	"github.com/nhle/mailterm/internal/ui/maillist"
	"github.com/nhle/mailterm/internal/ui/settings"
	"github.com/nhle/mailterm/internal/ui/toast"
)

// tickInterval drives countdown rendering and deferred-commit expiry.
const tickInterval = 250 * time.Millisecond

// tickMsg is the coarse clock tick for the pending-commit queue.
type tickMsg time.Time

// unreadCountMsg carries the number of unread notifications to the UI.
type unreadCountMsg struct {
	count int
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewCompose
	ViewSettings
	ViewHelp
	ViewCommand
)

// API is the backend surface the app needs: field mutations plus the
// scheduled-send endpoints.
type API interface {
	dispatch.API
	CreateSend(ctx context.Context, payload backend.SendPayload, offsetMs int) (*backend.SendReceipt, error)
	CancelSend(ctx context.Context, id string) error
}

// Model is the root Bubble Tea model that manages view routing, layout,
// the optimistic overlay, and the pending-commit queue.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        store.Store
	cfg          *model.AppConfig
	configPath   string
	keys         *KeyMap

	api        API
	overlays   *overlay.Store
	reconciler *reconcile.Reconciler
	dispatcher *dispatch.Dispatcher
	queue      *outbox.Queue
	hub        *realtime.Hub

	// pendingCommits maps a queue entry ID to the mutation that runs when
	// its undo window expires (client-deferred entries only).
	pendingCommits map[string]dispatch.Mutation

	mailList     maillist.Model
	detailView   detail.Model
	helpView     helpview.Model
	commandView  command.Model
	composeView  compose.Model
	settingsView settings.Model
	toasts       toast.Model

	ready            bool
	unreadCount      int
	transport        realtime.TransportState
	authErrorMessage string
}

// New creates the root application model.
func New(
	s store.Store,
	cfg *model.AppConfig,
	configPath string,
	api API,
	hub *realtime.Hub,
) Model {
	k := DefaultKeyMap()
	overlays := overlay.New()

	return Model{
		currentView:    ViewList,
		store:          s,
		cfg:            cfg,
		configPath:     configPath,
		keys:           k,
		api:            api,
		overlays:       overlays,
		reconciler:     reconcile.New(overlays),
		dispatcher:     dispatch.New(api),
		queue:          outbox.New(),
		hub:            hub,
		pendingCommits: make(map[string]dispatch.Mutation),
		mailList:       maillist.New(s, k, overlays.ProjectAll, 80, 24),
		detailView:     detail.New(k, 80, 24),
		helpView:       helpview.New(k, 80, 24),
		commandView:    command.New(80, 24),
		composeView:    compose.New(80, 24),
		settingsView:   settings.New(configPath, cfg, 80, 24),
		toasts:         toast.New(80),
		transport:      realtime.TransportReconnecting,
	}
}

// Init loads the cached list, opens the push subscription, and starts
// the countdown tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.mailList.Init(),
		m.hub.Start(),
		m.tick(),
	)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.mailList.SetSize(contentWidth, contentHeight)
		m.detailView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		m.composeView.SetSize(contentWidth, contentHeight)
		m.settingsView.SetSize(contentWidth, contentHeight)
		m.toasts.SetWidth(contentWidth)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case tickMsg:
		return m.handleTick()

	case realtime.SnapshotMsg:
		m.reconciler.ObserveSnapshot(msg.Entities)
		return m, tea.Batch(
			m.mailList.LoadEntities(),
			m.refreshOpenDetail(),
			m.fetchUnreadCount(),
			m.hub.WaitForNextEvent(),
		)

	case realtime.ChangeMsg:
		if msg.Type == realtime.ChangeRemoved {
			m.reconciler.ObserveRemoved(msg.Entity.ID)
		} else {
			m.reconciler.Observe(msg.Entity)
		}
		return m, tea.Batch(
			m.mailList.LoadEntities(),
			m.refreshOpenDetail(),
			m.fetchUnreadCount(),
			m.hub.WaitForNextEvent(),
		)

	case realtime.TransportMsg:
		m.transport = msg.State
		return m, m.hub.WaitForNextEvent()

	case unreadCountMsg:
		m.unreadCount = msg.count
		return m, nil

	case maillist.FilterChangedMsg:
		m.hub.SetFilter(realtime.Filter{
			Category:   msg.Category,
			UnreadOnly: msg.UnreadOnly,
		})
		return m, nil

	case maillist.SelectedEntityMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detailView.SetLoading(true)
		return m, m.loadEntityDetail(msg.EntityID)

	case entityDetailMsg:
		m.detailView.SetEntity(msg.entity)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case detail.ActionMsg:
		return m.handleDetailAction(msg)

	case mutationResultMsg:
		return m.handleMutationResult(msg)

	case compose.SendRequestedMsg:
		m.currentView = ViewList
		return m, m.createSend(msg.Payload)

	case compose.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case sendCreatedMsg:
		return m.handleSendCreated(msg)

	case cancelResultMsg:
		return m.handleCancelResult(msg)

	case settings.SavedMsg:
		m.cfg = msg.Config
		m.currentView = ViewList
		m.toasts.Notify("Settings saved — restart to apply connection changes")
		return m, nil

	case settings.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if handled, mdl, cmd := m.handleGlobalKeys(msg); handled {
			return mdl, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that work regardless of current view.
// Returns handled=false when the key should fall through to the view.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (bool, tea.Model, tea.Cmd) {
	// Views with text input get every key except ctrl+c.
	typing := m.currentView == ViewCompose ||
		m.currentView == ViewSettings ||
		m.currentView == ViewCommand ||
		m.mailList.InSearch() && m.currentView == ViewList

	switch msg.String() {
	case "ctrl+c":
		return true, m, m.teardown()

	case "q":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			return true, m, m.teardown()
		}

	case "?":
		if typing {
			break
		}
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return true, m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return true, m, nil

	case ":":
		if m.currentView == ViewCommand {
			m.currentView = m.previousView
			return true, m, nil
		}
		if typing {
			break
		}
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return true, m, m.commandView.Focus()

	case "c":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			m.previousView = m.currentView
			m.currentView = ViewCompose
			return true, m, m.composeView.StartCompose()
		}

	case "r":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			return true, m, m.mailList.LoadEntities()
		}

	case "m":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			mdl, cmd := m.toggleReadSelected()
			return true, mdl, cmd
		}

	case "e":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			mdl, cmd := m.markDoneSelected()
			return true, mdl, cmd
		}

	case "#":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			mdl, cmd := m.deleteSelected()
			return true, mdl, cmd
		}

	case "z":
		if !typing {
			mdl, cmd := m.cancelNewest()
			return true, mdl, cmd
		}

	case "p":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			m.pauseNewest()
			return true, m, nil
		}

	case "P":
		if m.currentView == ViewList && !m.mailList.InSearch() {
			m.resumeNewest()
			return true, m, nil
		}
	}

	return false, m, nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.mailList, cmd = m.mailList.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// handleTick expires due queue entries, fires their held mutations, and
// refreshes the toast stack.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	for _, exp := range m.queue.Advance() {
		if exp.Strategy == outbox.StrategyClientDeferred {
			if mut, ok := m.pendingCommits[exp.ID]; ok {
				delete(m.pendingCommits, exp.ID)
				cmds = append(cmds, m.dispatchCmd(mut))
			}
			if exp.Commit != nil {
				exp.Commit()
			}
		}
		// Server-deferred expiry is informational: the backend commits on
		// its own schedule.
	}

	m.toasts.SetPending(m.queue.Entries())
	m.toasts, _ = m.toasts.Update(nil)

	cmds = append(cmds, m.tick())
	return m, tea.Batch(cmds...)
}

// executeCommand handles a command string from the command palette.
func (m Model) executeCommand(cmd string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "refresh", "sync":
		return m, m.mailList.LoadEntities()
	case "quit", "q":
		return m, m.teardown()
	case "settings", "config", "configure":
		m.previousView = m.currentView
		m.currentView = ViewSettings
		return m, m.settingsView.Start()
	case "compose", "new":
		m.previousView = m.currentView
		m.currentView = ViewCompose
		return m, m.composeView.StartCompose()
	default:
		return m, nil
	}
}

// teardown discards pending local state and stops the subscription. The
// overlay and queue are process-scoped; nothing optimistic survives.
func (m Model) teardown() tea.Cmd {
	m.queue.DiscardAll()
	m.overlays.Reset()
	m.hub.Stop()
	return tea.Quit
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(
		m.unreadCount, m.transportStatus(), m.transportStateName(),
	)
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	toasts := ""
	if !m.toasts.Empty() {
		toasts = m.toasts.View()
	}
	return m.layout.RenderWithFrame(header, content, statusBar, toasts)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.mailList.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewCompose:
		return m.composeView.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// transportStatus returns a short string describing subscription health.
func (m Model) transportStatus() string {
	switch m.transport {
	case realtime.TransportLive:
		return "live"
	case realtime.TransportDown:
		return "⚠ can't load mailbox"
	default:
		return "reconnecting"
	}
}

// transportStateName maps the transport state to the theme's color key.
func (m Model) transportStateName() string {
	switch m.transport {
	case realtime.TransportLive:
		return "live"
	case realtime.TransportDown:
		return "down"
	default:
		return "reconnecting"
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.authErrorMessage != "" && m.currentView == ViewList {
		return m.authErrorMessage
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return ": close command | enter execute | esc back"
	case ViewDetail:
		return "esc back | m toggle read | e done | # delete | j/k scroll"
	case ViewCompose, ViewSettings:
		return "enter submit | esc cancel"
	default:
		return "q quit | ? help | c compose | m read | e done | z undo | / search"
	}
}

// refreshOpenDetail reloads the projected entity shown in the message
// view, if any, so reconciled server state flows through immediately.
func (m Model) refreshOpenDetail() tea.Cmd {
	if m.currentView != ViewDetail {
		return nil
	}
	e := m.detailView.Entity()
	if e == nil {
		return nil
	}
	return m.loadEntityDetail(e.ID)
}

// entityDetailMsg carries a loaded, projected entity for the message view.
type entityDetailMsg struct {
	entity *model.Entity
}

// loadEntityDetail loads one entity from the cache and projects it
// through the overlay.
func (m Model) loadEntityDetail(id string) tea.Cmd {
	s := m.store
	overlays := m.overlays
	return func() tea.Msg {
		e, err := s.GetEntityByID(context.Background(), id)
		if err != nil || e == nil {
			return entityDetailMsg{entity: nil}
		}
		projected := overlays.Project(*e)
		return entityDetailMsg{entity: &projected}
	}
}

// fetchUnreadCount returns a tea.Cmd that queries the store for the
// number of unread notifications.
func (m Model) fetchUnreadCount() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		notifications, err := s.GetUnreadNotifications(context.Background())
		if err != nil {
			return unreadCountMsg{count: 0}
		}
		return unreadCountMsg{count: len(notifications)}
	}
}

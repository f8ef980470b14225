package maillist

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/keys"
	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/store"
	"github.com/nhle/mailterm/internal/theme"
)

// EntitiesLoadedMsg is sent when entities have been loaded from the
// cache and projected through the overlay store.
type EntitiesLoadedMsg struct {
	Entities []model.Entity
}

// SelectedEntityMsg is sent when a user opens a message.
type SelectedEntityMsg struct {
	EntityID string
}

// FilterChangedMsg is sent when the collection predicate changes so the
// owner can move the push subscription to the new scope.
type FilterChangedMsg struct {
	Category   model.Category
	UnreadOnly bool
}

// sortModes defines the available sort modes cycled by Tab.
var sortModes = []string{
	"received_at",
	"updated_at",
	"subject",
	"sender",
}

// Model is the main message list view component.
type Model struct {
	list        list.Model
	store       store.Store
	keys        *keys.KeyMap
	project     func([]model.Entity) []model.Entity
	filter      store.EntityFilter
	category    model.Category
	unreadOnly  bool
	sortIndex   int
	searchMode  bool
	searchInput textinput.Model
	pending     map[string]bool
	marked      map[string]bool
	width       int
	height      int
}

// New creates a new message list model. project applies the optimistic
// overlay to cached entities before display; pass nil to show server
// state as-is.
func New(
	s store.Store,
	k *keys.KeyMap,
	project func([]model.Entity) []model.Entity,
	width, height int,
) Model {
	pending := make(map[string]bool)
	marked := make(map[string]bool)
	delegate := ItemDelegate{pending: pending, marked: marked}
	l := list.New([]list.Item{}, delegate, width, height-2)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search mail..."
	si.Prompt = "/ "
	si.Width = width - 4

	if project == nil {
		project = func(entities []model.Entity) []model.Entity {
			return entities
		}
	}

	inbox := model.CategoryInbox
	return Model{
		list:    l,
		store:   s,
		keys:    k,
		project: project,
		filter: store.EntityFilter{
			Category: &inbox,
			SortBy:   "received_at",
			SortDesc: true,
		},
		category:    model.CategoryInbox,
		sortIndex:   0,
		searchInput: si,
		pending:     pending,
		marked:      marked,
		width:       width,
		height:      height,
	}
}

// Init returns a command that loads the initial set of messages.
func (m Model) Init() tea.Cmd {
	return m.LoadEntities()
}

// Update handles messages for the message list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EntitiesLoadedMsg:
		items := make([]list.Item, len(msg.Entities))
		visible := make(map[string]bool, len(msg.Entities))
		for i, e := range msg.Entities {
			items[i] = EntityItem{Entity: e}
			visible[e.ID] = true
		}
		// Marks on rows that left the collection are void.
		for id := range m.marked {
			if !visible[id] {
				delete(m.marked, id)
			}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	// Delegate to list model for other messages
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		query := m.searchInput.Value()
		if query != "" {
			m.filter.Query = &query
		} else {
			m.filter.Query = nil
		}
		return m, m.LoadEntities()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.filter.Query = nil
		return m, m.LoadEntities()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(EntityItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedEntityMsg{EntityID: item.Entity.ID}
		}

	case key.Matches(msg, m.keys.Mark):
		item, ok := m.list.SelectedItem().(EntityItem)
		if !ok {
			return m, nil
		}
		id := item.Entity.ID
		if m.marked[id] {
			delete(m.marked, id)
		} else {
			m.marked[id] = true
		}
		m.list.CursorDown()
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if len(m.marked) > 0 {
			m.ClearMarked()
			return m, nil
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.FilterInbox):
		return m.setCategory(model.CategoryInbox)

	case key.Matches(msg, m.keys.FilterDone):
		return m.setCategory(model.CategoryDone)

	case key.Matches(msg, m.keys.FilterTrash):
		return m.setCategory(model.CategoryTrash)

	case key.Matches(msg, m.keys.FilterUnread):
		m.unreadOnly = !m.unreadOnly
		if m.unreadOnly {
			unread := true
			m.filter.Unread = &unread
		} else {
			m.filter.Unread = nil
		}
		return m, tea.Batch(m.LoadEntities(), m.filterChanged())

	case key.Matches(msg, m.keys.CycleSort):
		m.sortIndex = (m.sortIndex + 1) % len(sortModes)
		m.filter.SortBy = sortModes[m.sortIndex]
		return m, m.LoadEntities()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// setCategory switches the mounted collection and reloads.
func (m Model) setCategory(c model.Category) (Model, tea.Cmd) {
	m.category = c
	m.filter.Category = &c
	m.list.Title = titleFor(c)
	return m, tea.Batch(m.LoadEntities(), m.filterChanged())
}

func titleFor(c model.Category) string {
	switch c {
	case model.CategoryDone:
		return "Done"
	case model.CategorySent:
		return "Sent"
	case model.CategoryTrash:
		return "Trash"
	default:
		return "Inbox"
	}
}

func (m Model) filterChanged() tea.Cmd {
	category := m.category
	unreadOnly := m.unreadOnly
	return func() tea.Msg {
		return FilterChangedMsg{Category: category, UnreadOnly: unreadOnly}
	}
}

// View renders the message list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no messages are available.
func (m Model) renderEmptyState() string {
	hasFilters := m.filter.Unread != nil || m.filter.Query != nil

	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if hasFilters {
		return style.Render("No matching mail.\nTry adjusting your filters.")
	}

	return style.Render("Nothing here yet.")
}

// LoadEntities returns a tea.Cmd that queries the cache with the current
// filter and projects the result through the overlay.
func (m Model) LoadEntities() tea.Cmd {
	filter := m.filter
	s := m.store
	project := m.project
	return func() tea.Msg {
		entities, err := s.GetEntities(context.Background(), filter)
		if err != nil {
			return EntitiesLoadedMsg{Entities: nil}
		}
		return EntitiesLoadedMsg{Entities: project(entities)}
	}
}

// SelectedID returns the ID of the focused message, or "" when the list
// is empty.
func (m Model) SelectedID() string {
	item, ok := m.list.SelectedItem().(EntityItem)
	if !ok {
		return ""
	}
	return item.Entity.ID
}

// SelectedEntity returns the focused projected entity.
func (m Model) SelectedEntity() (model.Entity, bool) {
	item, ok := m.list.SelectedItem().(EntityItem)
	if !ok {
		return model.Entity{}, false
	}
	return item.Entity, true
}

// InSearch reports whether the search input has keyboard focus.
func (m Model) InSearch() bool { return m.searchMode }

// MarkedEntities returns the marked projected entities in list order.
func (m Model) MarkedEntities() []model.Entity {
	var out []model.Entity
	for _, item := range m.list.Items() {
		ei, ok := item.(EntityItem)
		if !ok {
			continue
		}
		if m.marked[ei.Entity.ID] {
			out = append(out, ei.Entity)
		}
	}
	return out
}

// MarkedIDs returns the marked entity ids in list order.
func (m Model) MarkedIDs() []string {
	entities := m.MarkedEntities()
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

// ClearMarked drops every mark.
func (m *Model) ClearMarked() {
	for id := range m.marked {
		delete(m.marked, id)
	}
}

// Category returns the mounted collection's category.
func (m Model) Category() model.Category { return m.category }

// UnreadOnly reports whether the unread-only predicate is active.
func (m Model) UnreadOnly() bool { return m.unreadOnly }

// SetPending flips the in-flight marker for an entity row.
func (m *Model) SetPending(id string, pending bool) {
	if pending {
		m.pending[id] = true
	} else {
		delete(m.pending, id)
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}

package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/keys"
	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// ActionMsg signals the parent to execute a mutation on the open message.
type ActionMsg struct {
	Action   string
	EntityID string
}

// Model is the message view component. It always renders the projected
// entity, so optimistic flag changes are visible here too.
type Model struct {
	entity   *model.Entity
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new message view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the message view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the message view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.ToggleRead):
			if m.entity != nil {
				return m, m.action("toggle-read")
			}

		case key.Matches(msg, m.keys.Done):
			if m.entity != nil {
				return m, m.action("done")
			}

		case key.Matches(msg, m.keys.Delete):
			if m.entity != nil {
				return m, m.action("delete")
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) action(name string) tea.Cmd {
	id := m.entity.ID
	return func() tea.Msg {
		return ActionMsg{Action: name, EntityID: id}
	}
}

// View renders the message view.
func (m Model) View() string {
	if m.loading {
		loadingStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return loadingStyle.Render("Loading message...")
	}

	if m.entity == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No message selected")
	}

	return m.viewport.View()
}

// renderContent builds the full message content string for the viewport.
func (m Model) renderContent() string {
	if m.entity == nil {
		return ""
	}

	e := m.entity
	var sections []string

	// Subject
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(e.Subject))

	// Badges line: category + flag states
	catBadge := theme.CategoryStyle(string(e.Category)).
		Render(string(e.Category))

	var flags []string
	if !e.IsRead {
		flags = append(flags, theme.UnreadStyle.Render("unread"))
	}
	if e.IsDone {
		flags = append(flags, theme.CategoryStyle("done").Render("done"))
	}
	if e.IsDeleted {
		flags = append(flags, theme.CategoryStyle("trash").Render("deleted"))
	}

	badgeLine := catBadge
	if len(flags) > 0 {
		badgeLine = lipgloss.JoinHorizontal(
			lipgloss.Top, catBadge, "  ", strings.Join(flags, "  "),
		)
	}
	sections = append(sections, badgeLine)
	sections = append(sections, "")

	// Metadata table
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	if e.From != "" {
		sections = append(sections, fmt.Sprintf(
			"%s      %s",
			metaStyle.Render("From:"),
			valStyle.Render(e.From),
		))
	}
	if e.ThreadID != "" {
		sections = append(sections, fmt.Sprintf(
			"%s    %s",
			metaStyle.Render("Thread:"),
			valStyle.Render(e.ThreadID),
		))
	}
	if !e.ReceivedAt.IsZero() {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("Received:"),
			valStyle.Render(e.ReceivedAt.Format("2006-01-02 15:04")),
		))
	}
	if !e.UpdatedAt.IsZero() {
		sections = append(sections, fmt.Sprintf(
			"%s   %s",
			metaStyle.Render("Updated:"),
			valStyle.Render(e.UpdatedAt.Format("2006-01-02 15:04")),
		))
	}

	// Separator
	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", min(m.width-4, 80)))
	sections = append(sections, "")
	sections = append(sections, separator)
	sections = append(sections, "")

	body := e.Snippet
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No preview available")
	}
	sections = append(sections, body)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetEntity updates the message being displayed and re-renders the
// content. Pass the projected entity so overlays show through.
func (m *Model) SetEntity(e *model.Entity) {
	m.entity = e
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Entity returns the message currently displayed.
func (m Model) Entity() *model.Entity { return m.entity }

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// SetSize updates the message view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}

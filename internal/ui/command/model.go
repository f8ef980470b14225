package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/theme"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// CancelMsg is emitted when the palette is dismissed without running
// anything.
type CancelMsg struct{}

// spec describes one palette command and the aliases that invoke it.
// Kept in sync with the root model's command dispatch.
type spec struct {
	name    string
	aliases []string
	hint    string
}

var commands = []spec{
	{name: "compose", aliases: []string{"new"}, hint: "write a new message"},
	{name: "refresh", aliases: []string{"sync"}, hint: "reload the mailbox"},
	{name: "settings", aliases: []string{"config", "configure"}, hint: "edit account and undo windows"},
	{name: "quit", aliases: []string{"q"}, hint: "exit mailterm"},
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "compose, refresh, settings, quit..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			cmd := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if cmd != "" {
				return m, func() tea.Msg {
					return CommandMsg(cmd)
				}
			}
			return m, nil

		case "esc":
			m.input.Reset()
			return m, func() tea.Msg {
				return CancelMsg{}
			}

		case "tab":
			if match, ok := complete(m.input.Value()); ok {
				m.input.SetValue(match)
				m.input.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// complete returns the canonical name of the first command matching the
// typed prefix. Aliases complete to their canonical name too.
func complete(prefix string) (string, bool) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", false
	}
	for _, c := range commands {
		if strings.HasPrefix(c.name, prefix) {
			return c.name, true
		}
		for _, a := range c.aliases {
			if strings.HasPrefix(a, prefix) {
				return c.name, true
			}
		}
	}
	return "", false
}

// suggestions returns the commands matching the typed prefix, or all of
// them when the input is empty.
func suggestions(prefix string) []spec {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return commands
	}
	var out []spec
	for _, c := range commands {
		if strings.HasPrefix(c.name, prefix) {
			out = append(out, c)
			continue
		}
		for _, a := range c.aliases {
			if strings.HasPrefix(a, prefix) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// View renders the command palette with matching commands listed under
// the input.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	nameStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorBlue)

	title := titleStyle.Render("Command")
	input := m.input.View()

	rows := []string{title, input, ""}
	for _, c := range suggestions(m.input.Value()) {
		rows = append(rows, lipgloss.JoinHorizontal(
			lipgloss.Top,
			nameStyle.Width(12).Render(c.name),
			theme.HelpStyle.Render(c.hint),
		))
	}
	rows = append(rows, "", theme.HelpStyle.Render("tab complete | enter run | esc back"))

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	return m.input.Focus()
}

package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/theme"
)

// appName is the title shown on the left of the header bar.
const appName = "mailterm"

// Layout manages the terminal frame: header with unread badge and
// transport indicator, content area, status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top bar: app name with an unread-mail badge
// on the left, the transport indicator colored by connection health on
// the right. state is "live", "reconnecting", or "down".
func (l Layout) RenderHeader(unread int, transport, state string) string {
	title := appName
	if unread > 0 {
		title = fmt.Sprintf("%s [%d new]", appName, unread)
	}
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.TransportStyle(state).
		Background(theme.HeaderStyle.GetBackground()).
		Padding(0, 1).
		Render(transport)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar. The toast dock, when
// non-empty, hangs below the frame so countdowns never cover mail.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
	toasts string,
) string {
	frame := lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
	if toasts == "" {
		return frame
	}
	return frame + "\n" + toasts
}

package toast

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/outbox"
	"github.com/nhle/mailterm/internal/theme"
)

// noticeDuration is how long a transient outcome notice stays visible.
const noticeDuration = 4 * time.Second

// notice is a transient outcome line (committed, cancelled, failed).
type notice struct {
	text      string
	isError   bool
	expiresAt time.Time
}

// Model renders the pending-commit stack: one toast per live queue
// entry with its countdown, plus transient outcome notices.
type Model struct {
	pending []outbox.View
	notices []notice
	now     func() time.Time
	width   int
}

// New creates a toast stack model.
func New(width int) Model {
	return Model{now: time.Now, width: width}
}

// SetPending replaces the live entry views. Call on every queue tick so
// countdowns stay current.
func (m *Model) SetPending(views []outbox.View) {
	live := views[:0:0]
	for _, v := range views {
		if !v.Status.Terminal() {
			live = append(live, v)
		}
	}
	m.pending = live
}

// Notify pushes a transient outcome notice.
func (m *Model) Notify(text string) {
	m.notices = append(m.notices, notice{
		text:      text,
		expiresAt: m.now().Add(noticeDuration),
	})
}

// NotifyError pushes a transient error notice.
func (m *Model) NotifyError(text string) {
	m.notices = append(m.notices, notice{
		text:      text,
		isError:   true,
		expiresAt: m.now().Add(noticeDuration),
	})
}

// Update drops expired notices. Drive it from the same tick that
// advances the queue.
func (m Model) Update(_ tea.Msg) (Model, tea.Cmd) {
	now := m.now()
	kept := m.notices[:0:0]
	for _, n := range m.notices {
		if now.Before(n.expiresAt) {
			kept = append(kept, n)
		}
	}
	m.notices = kept
	return m, nil
}

// Empty reports whether there is nothing to render.
func (m Model) Empty() bool {
	return len(m.pending) == 0 && len(m.notices) == 0
}

// View renders the toast stack, newest at the bottom.
func (m Model) View() string {
	if m.Empty() {
		return ""
	}

	var lines []string
	for _, v := range m.pending {
		lines = append(lines, m.renderPending(v))
	}
	for _, n := range m.notices {
		style := theme.ToastStyle
		if n.isError {
			style = theme.ToastErrorStyle
		}
		lines = append(lines, style.Render(n.text))
	}

	return lipgloss.JoinVertical(lipgloss.Right, lines...)
}

func (m Model) renderPending(v outbox.View) string {
	countdown := theme.CountdownStyle(v.RemainingMs).
		Render(formatRemaining(v.RemainingMs))

	var line string
	switch v.Status {
	case outbox.StatusPaused:
		line = fmt.Sprintf("%s — paused at %s", v.Label, countdown)
	case outbox.StatusCancelling:
		line = fmt.Sprintf("%s — cancelling…", v.Label)
	default:
		line = fmt.Sprintf("%s — %s to undo", v.Label, countdown)
	}

	return theme.ToastStyle.Render(line)
}

// formatRemaining renders a countdown as whole seconds, rounding up so
// the display never shows 0s while the window is still open.
func formatRemaining(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := (ms + 999) / 1000
	return fmt.Sprintf("%ds", secs)
}

// SetWidth updates the rendering width.
func (m *Model) SetWidth(width int) {
	m.width = width
}

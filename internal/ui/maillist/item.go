package maillist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/theme"
)

// StalenessThreshold defines how old FetchedAt can be before a message
// row is flagged as possibly out of date. Defaults to 5 minutes.
var StalenessThreshold = 5 * time.Minute

// EntityItem wraps a projected model.Entity so it can be used in a
// bubbles/list. The entity already has overlays applied.
type EntityItem struct {
	Entity model.Entity
}

// FilterValue returns the string used for fuzzy filtering.
func (i EntityItem) FilterValue() string {
	return i.Entity.Subject + " " + i.Entity.From
}

// Title returns the message subject for the list.
func (i EntityItem) Title() string { return i.Entity.Subject }

// Description returns a short summary line for the list.
func (i EntityItem) Description() string {
	return i.Entity.From + " | " + relativeTime(i.Entity.ReceivedAt)
}

// ItemDelegate implements list.ItemDelegate for rendering message rows.
type ItemDelegate struct {
	// pending maps entity IDs to true while a mutation for them is in
	// flight. marked holds the multi-select set. Both are shared by
	// reference with the maillist Model so updates are visible without
	// rebuilding the delegate.
	pending map[string]bool
	marked  map[string]bool
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entityItem, ok := item.(EntityItem)
	if !ok {
		return
	}

	e := entityItem.Entity
	isSelected := index == m.Index()

	// Multi-select marker
	mark := " "
	if d.marked[e.ID] {
		mark = theme.SelectedItemStyle.Render("▸")
	}

	// Read state marker
	var marker string
	if e.IsRead {
		marker = " "
	} else {
		marker = theme.UnreadStyle.Render("●")
	}

	// Category badge
	catBadge := theme.CategoryStyle(string(e.Category)).
		Render(string(e.Category))

	// Sender and subject
	from := lipgloss.NewStyle().
		Width(20).
		Render(truncate(e.From, 20))
	subject := e.Subject
	if !e.IsRead {
		subject = theme.UnreadStyle.Render(subject)
	}

	// Pending mutation marker
	pendingStr := ""
	if d.pending[e.ID] {
		pendingStr = lipgloss.NewStyle().
			Foreground(theme.ColorYellow).
			Render(" ~")
	}

	// Staleness marker
	staleStr := ""
	if !e.FetchedAt.IsZero() && time.Since(e.FetchedAt) > StalenessThreshold {
		staleStr = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Render(" ●")
	}

	// Time
	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(e.ReceivedAt))

	line := fmt.Sprintf(
		"%s%s %s %s %s%s%s  %s",
		mark, marker, catBadge, from, subject, pendingStr, staleStr, timeStr,
	)

	// Done and deleted rows render dimmed
	if e.IsDone || e.IsDeleted {
		line = theme.StaleStyle.Render(line)
	}

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		weeks := int(d.Hours() / 24 / 7)
		if weeks == 1 {
			return "1w ago"
		}
		return fmt.Sprintf("%dw ago", weeks)
	}
}

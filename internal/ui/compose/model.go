package compose

import (
	"fmt"
	"net/mail"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/backend"
	"github.com/nhle/mailterm/internal/theme"
)

// SendRequestedMsg is dispatched when a composed email is submitted.
// The send still goes through the undo window before it is committed.
type SendRequestedMsg struct {
	Payload backend.SendPayload
}

// CancelMsg is dispatched when the user abandons the compose form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	to      string
	subject string
	body    string
}

// Model is the Bubble Tea model for the compose form.
type Model struct {
	form      *huh.Form
	fb        *formBindings
	replyMode bool
	inReplyTo string
	width     int
	height    int
}

// New creates a new compose form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// StartCompose initializes the form for a fresh email.
func (m *Model) StartCompose() tea.Cmd {
	m.replyMode = false
	m.inReplyTo = ""
	m.fb.to = ""
	m.fb.subject = ""
	m.fb.body = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// StartReply initializes the form as a reply to an existing message.
func (m *Model) StartReply(to, subject, inReplyTo string) tea.Cmd {
	m.replyMode = true
	m.inReplyTo = inReplyTo
	m.fb.to = to
	m.fb.subject = subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		m.fb.subject = "Re: " + subject
	}
	m.fb.body = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the compose form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the compose form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Email"
	if m.replyMode {
		titleText = "Reply"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Placeholder("recipient@example.com").
				Value(&m.fb.to).
				Validate(validateRecipients),
			huh.NewInput().
				Title("Subject").
				Placeholder("Subject").
				Value(&m.fb.subject).
				Validate(validateRequired("Subject")),
			huh.NewText().
				Title("Body").
				Placeholder("Write your message...").
				Value(&m.fb.body),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	payload := backend.SendPayload{
		To:        splitRecipients(m.fb.to),
		Subject:   m.fb.subject,
		Body:      m.fb.body,
		InReplyTo: m.inReplyTo,
	}
	return func() tea.Msg { return SendRequestedMsg{Payload: payload} }
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

// splitRecipients turns a comma-separated recipient line into a list of
// trimmed addresses.
func splitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateRecipients(s string) error {
	addrs := splitRecipients(s)
	if len(addrs) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for _, a := range addrs {
		if _, err := mail.ParseAddress(a); err != nil {
			return fmt.Errorf("invalid address %q", a)
		}
	}
	return nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

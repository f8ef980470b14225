package settings

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailterm/internal/credential"
	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/theme"
)

// SavedMsg signals the settings were persisted. The owner should rebuild
// clients that depend on them.
type SavedMsg struct {
	Config *model.AppConfig
}

// CancelMsg signals the settings view should close without saving.
type CancelMsg struct{}

// savedInternalMsg carries the result of the save command.
type savedInternalMsg struct {
	cfg *model.AppConfig
	err error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	backendURL   string
	backendToken string

	imapHost     string
	imapPort     string
	imapUsername string
	imapPassword string
	imapMailbox  string
	imapTLS      bool

	sendWindowMs string
	doneWindowMs string
}

// Model is the Bubble Tea model for the settings form.
type Model struct {
	form       *huh.Form
	fb         *formBindings
	configPath string
	cfg        *model.AppConfig
	statusMsg  string
	width      int
	height     int
}

// New creates the settings view over the given config.
func New(configPath string, cfg *model.AppConfig, width, height int) Model {
	return Model{
		fb:         &formBindings{},
		configPath: configPath,
		cfg:        cfg,
		width:      width,
		height:     height,
	}
}

// Start initializes the form from the current config. Secrets are left
// blank; an empty secret field means "keep the stored value".
func (m *Model) Start() tea.Cmd {
	m.fb.backendURL = m.cfg.Backend.BaseURL
	m.fb.backendToken = ""
	m.fb.imapHost = m.cfg.IMAP.Host
	m.fb.imapPort = m.cfg.IMAP.Port
	m.fb.imapUsername = m.cfg.IMAP.Username
	m.fb.imapPassword = ""
	m.fb.imapMailbox = m.cfg.IMAP.Mailbox
	m.fb.imapTLS = m.cfg.IMAP.TLS
	m.fb.sendWindowMs = strconv.Itoa(m.cfg.Undo.SendWindowMs)
	m.fb.doneWindowMs = strconv.Itoa(m.cfg.Undo.DoneWindowMs)
	m.statusMsg = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the settings view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if saved, ok := msg.(savedInternalMsg); ok {
		if saved.err != nil {
			m.statusMsg = fmt.Sprintf("Save failed: %v", saved.err)
			return m, nil
		}
		m.cfg = saved.cfg
		return m, func() tea.Msg { return SavedMsg{Config: saved.cfg} }
	}

	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.save()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the settings form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Settings") + "\n" + m.form.View()
	if m.statusMsg != "" {
		content += "\n" + theme.HelpStyle.Render(m.statusMsg)
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the settings view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend URL").
				Placeholder("https://mail.example.com/api").
				Value(&m.fb.backendURL).
				Validate(validateURL),
			huh.NewInput().
				Title("API token").
				Placeholder("leave blank to keep current").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.backendToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Value(&m.fb.imapHost).
				Validate(validateRequired("IMAP host")),
			huh.NewInput().
				Title("IMAP port").
				Value(&m.fb.imapPort).
				Validate(validatePort),
			huh.NewInput().
				Title("IMAP username").
				Value(&m.fb.imapUsername).
				Validate(validateRequired("IMAP username")),
			huh.NewInput().
				Title("IMAP password").
				Placeholder("leave blank to keep current").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.imapPassword),
			huh.NewInput().
				Title("Mailbox").
				Value(&m.fb.imapMailbox),
			huh.NewConfirm().
				Title("Use TLS").
				Value(&m.fb.imapTLS),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Send undo window (ms)").
				Value(&m.fb.sendWindowMs).
				Validate(validateWindowMs),
			huh.NewInput().
				Title("Done undo window (ms)").
				Value(&m.fb.doneWindowMs).
				Validate(validateWindowMs),
		),
	).WithWidth(m.formWidth()).WithHeight(m.height - 4)
}

// save persists the config file and any changed secrets, then reports
// the result back into the update loop.
func (m Model) save() tea.Cmd {
	fb := *m.fb
	cfg := *m.cfg
	path := m.configPath

	return func() tea.Msg {
		cfg.Backend.BaseURL = strings.TrimRight(fb.backendURL, "/")
		cfg.IMAP.Host = fb.imapHost
		cfg.IMAP.Port = fb.imapPort
		cfg.IMAP.Username = fb.imapUsername
		cfg.IMAP.Mailbox = fb.imapMailbox
		cfg.IMAP.TLS = fb.imapTLS
		cfg.Undo.SendWindowMs, _ = strconv.Atoi(fb.sendWindowMs)
		cfg.Undo.DoneWindowMs, _ = strconv.Atoi(fb.doneWindowMs)

		if err := model.SaveConfig(path, &cfg); err != nil {
			return savedInternalMsg{err: err}
		}

		if fb.backendToken != "" {
			if err := credential.Set(credential.KeyBackendToken, fb.backendToken); err != nil {
				return savedInternalMsg{err: err}
			}
		}
		if fb.imapPassword != "" {
			if err := credential.Set(credential.KeyIMAPPassword, fb.imapPassword); err != nil {
				return savedInternalMsg{err: err}
			}
		}

		return savedInternalMsg{cfg: &cfg}
	}
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

func validateURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Backend URL is required")
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL, expected https://host/path")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port")
	}
	return nil
}

func validateWindowMs(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative number of milliseconds")
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

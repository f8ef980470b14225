package command

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTabCompletesCommandPrefix(t *testing.T) {
	m := New(80, 24)
	m, _ = m.Update(key("re"))
	m, _ = m.Update(key("tab"))

	if got := m.input.Value(); got != "refresh" {
		t.Fatalf("expected completion to refresh, got %q", got)
	}
}

func TestTabCompletesAliasToCanonicalName(t *testing.T) {
	m := New(80, 24)
	m, _ = m.Update(key("conf"))
	m, _ = m.Update(key("tab"))

	if got := m.input.Value(); got != "settings" {
		t.Fatalf("alias should complete to canonical name, got %q", got)
	}
}

func TestEnterEmitsTrimmedCommand(t *testing.T) {
	m := New(80, 24)
	m, _ = m.Update(key("quit "))
	m, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("expected a command")
	}

	msg, ok := cmd().(CommandMsg)
	if !ok {
		t.Fatalf("expected CommandMsg, got %T", cmd())
	}
	if string(msg) != "quit" {
		t.Fatalf("expected quit, got %q", msg)
	}
	if m.input.Value() != "" {
		t.Fatal("input should reset after execute")
	}
}

func TestEscDismissesPalette(t *testing.T) {
	m := New(80, 24)
	m, _ = m.Update(key("comp"))
	m, cmd := m.Update(key("esc"))
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if _, ok := cmd().(CancelMsg); !ok {
		t.Fatalf("expected CancelMsg, got %T", cmd())
	}
	if m.input.Value() != "" {
		t.Fatal("input should reset on dismiss")
	}
}

func TestSuggestionsFilterByPrefix(t *testing.T) {
	m := New(80, 24)
	m, _ = m.Update(key("s"))

	out := m.View()
	if !strings.Contains(out, "settings") {
		t.Fatalf("settings suggestion missing: %q", out)
	}
	if strings.Contains(out, "write a new message") {
		t.Fatalf("compose hint should be filtered out: %q", out)
	}
}

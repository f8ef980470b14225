package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailterm/internal/app"
	"github.com/nhle/mailterm/internal/backend"
	"github.com/nhle/mailterm/internal/credential"
	"github.com/nhle/mailterm/internal/model"
	"github.com/nhle/mailterm/internal/realtime"
	"github.com/nhle/mailterm/internal/store"
)

func main() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	configDir := filepath.Join(home, ".config", "mailterm")
	configPath := model.DefaultConfigPath()

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %v\n", err)
		os.Exit(1)
	}

	dbPath := filepath.Join(configDir, "mailterm.db")
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Secrets live in the keyring; missing values just mean the user has
	// not finished setup and will land in the settings view.
	token, _ := credential.Get(credential.KeyBackendToken)
	imapPassword, _ := credential.Get(credential.KeyIMAPPassword)

	client := backend.NewClient(
		cfg.Backend.BaseURL,
		token,
		time.Duration(cfg.Backend.TimeoutSec)*time.Second,
	)

	source := realtime.NewIMAPSource(cfg.IMAP, imapPassword)
	hub := realtime.NewHub(db, source, realtime.Filter{
		Category: model.CategoryInbox,
	})

	appModel := app.New(db, cfg, configPath, client, hub)
	p := tea.NewProgram(appModel, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

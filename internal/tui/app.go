package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"policyqa-cli/internal/api"
	"policyqa-cli/internal/config"
)

// Options configures the interactive chat.
type Options struct {
	Version string
	Profile string
	Config  *config.Config
	Client  api.ChatAPI
	Log     *zap.Logger

	// GlamourStyle names the markdown theme ("dark", "light"). Empty picks
	// one from the terminal background.
	GlamourStyle string
}

// Run launches the interactive TUI mode (inline).
func Run(opts Options) error {
	if opts.GlamourStyle == "" {
		// Query the background before Bubble Tea takes over the terminal.
		opts.GlamourStyle = "light"
		if lipgloss.HasDarkBackground() {
			opts.GlamourStyle = "dark"
		}
	}

	m := newModel(opts)
	p := tea.NewProgram(m)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// Nothing reads events any more; keep a finishing send from blocking.
	go func() {
		for range m.events {
		}
	}()
	m.coordinator.Cancel()
	m.coordinator.Wait()
	return nil
}

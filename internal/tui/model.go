package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"policyqa-cli/internal/api"
	"policyqa-cli/internal/config"
	"policyqa-cli/internal/session"
)

// ─── App mode ───────────────────────────────────────────────────────────────

type appMode int

const (
	modeIdle appMode = iota
	modeStreaming
)

// ─── Slash command registry ─────────────────────────────────────────────────

type slashCmd struct {
	name string
	desc string
}

var slashCommands = []slashCmd{
	{"/clear", "Clear the screen"},
	{"/config", "Show current configuration"},
	{"/conversations", "List conversations"},
	{"/help", "Show all commands"},
	{"/new", "Start a new conversation"},
	{"/open", "Continue a conversation"},
	{"/quit", "Exit Policy QA"},
}

const defaultPlaceholder = "Ask a question or type /help..."

// ─── Model ──────────────────────────────────────────────────────────────────

type model struct {
	width  int
	height int

	// Bubble Tea components
	input   textinput.Model
	spinner spinner.Model

	// App state
	mode        appMode
	cfg         *config.Config
	profile     string
	version     string
	client      api.ChatAPI
	history     *session.History
	coordinator *session.Coordinator
	log         *zap.Logger

	// events carries observer notifications from running sends.
	events chan tea.Msg

	// Markdown rendering for committed answers
	glamourStyle string
	renderer     *glamour.TermRenderer

	// Streaming state
	live    *session.Snapshot // in-flight exchange, nil when none
	pending int               // sends started and not yet finished

	// UI state
	ready        bool
	cmdMenuIdx   int
	cmdMenuOpen  bool
	lastInputVal string

	// Command history
	inputHistory []string
	historyIdx   int
	historySaved string
}

func newModel(opts Options) model {
	ti := textinput.New()
	ti.Placeholder = defaultPlaceholder
	ti.Focus()
	ti.CharLimit = 4096
	ti.Prompt = "❯ "
	ti.PromptStyle = promptSymbol
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(colorTeal)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorTeal)

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	style := opts.GlamourStyle
	if style == "" {
		style = "dark"
	}

	events := make(chan tea.Msg, 64)
	history := session.NewHistory(opts.Client, opts.Config.ConversationID)
	coordinator := session.NewCoordinator(opts.Client, history, chanObserver{ch: events}, log.Named("session"))

	return model{
		input:        ti,
		spinner:      sp,
		version:      opts.Version,
		profile:      opts.Profile,
		cfg:          opts.Config,
		client:       opts.Client,
		history:      history,
		coordinator:  coordinator,
		log:          log.Named("tui"),
		events:       events,
		glamourStyle: style,
		mode:         modeIdle,
		historyIdx:   -1,
	}
}

// ─── Init ───────────────────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		waitForStream(m.events),
	}
	if id := m.history.ConversationID(); id != "" {
		cmds = append(cmds, openConversation(m.history, id))
	}
	return tea.Batch(cmds...)
}

// ─── Update ─────────────────────────────────────────────────────────────────

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 6
		m.renderer = newRenderer(m.glamourStyle, m.width)

		if !m.ready {
			m.ready = true
			welcome := renderWelcome(m.version, m.cfg.Server, m.cfg.Username)
			cmds = append(cmds, tea.Println(welcome))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.mode == modeStreaming {
				m.coordinator.Cancel()
				return m, nil
			}
			return m, tea.Quit

		case tea.KeyEsc:
			if m.mode == modeStreaming {
				m.coordinator.Cancel()
				return m, nil
			}
			if m.cmdMenuOpen {
				m.cmdMenuOpen = false
				m.cmdMenuIdx = 0
				return m, nil
			}

		case tea.KeyUp:
			if m.cmdMenuOpen {
				matches := matchCommands(m.input.Value())
				if len(matches) > 0 {
					m.cmdMenuIdx--
					if m.cmdMenuIdx < 0 {
						m.cmdMenuIdx = len(matches) - 1
					}
					return m, nil
				}
			} else if len(m.inputHistory) > 0 {
				if m.historyIdx == -1 {
					m.historySaved = m.input.Value()
					m.historyIdx = len(m.inputHistory) - 1
				} else {
					m.historyIdx--
					if m.historyIdx < 0 {
						m.historyIdx = 0
					}
				}
				m.input.SetValue(m.inputHistory[m.historyIdx])
				m.input.CursorEnd()
				return m, nil
			}

		case tea.KeyDown:
			if m.cmdMenuOpen {
				matches := matchCommands(m.input.Value())
				if len(matches) > 0 {
					m.cmdMenuIdx++
					if m.cmdMenuIdx >= len(matches) {
						m.cmdMenuIdx = 0
					}
					return m, nil
				}
			} else if m.historyIdx != -1 {
				m.historyIdx++
				if m.historyIdx >= len(m.inputHistory) {
					m.historyIdx = -1
					m.input.SetValue(m.historySaved)
					m.historySaved = ""
				} else {
					m.input.SetValue(m.inputHistory[m.historyIdx])
				}
				m.input.CursorEnd()
				return m, nil
			}

		case tea.KeyTab:
			if m.cmdMenuOpen {
				matches := matchCommands(m.input.Value())
				if len(matches) > 0 {
					idx := m.cmdMenuIdx
					if idx < 0 || idx >= len(matches) {
						idx = 0
					}
					m.input.SetValue(matches[idx].name + " ")
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
				}
				return m, nil
			}

		case tea.KeyEnter:
			if m.cmdMenuOpen && m.cmdMenuIdx >= 0 {
				matches := matchCommands(m.input.Value())
				// A complete command name runs directly.
				if m.cmdMenuIdx < len(matches) && matches[m.cmdMenuIdx].name != strings.TrimSpace(m.input.Value()) {
					m.input.SetValue(matches[m.cmdMenuIdx].name + " ")
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
					return m, nil
				}
			}

			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}

			if len(m.inputHistory) == 0 || m.inputHistory[len(m.inputHistory)-1] != value {
				m.inputHistory = append(m.inputHistory, value)
				if len(m.inputHistory) > 1000 {
					m.inputHistory = m.inputHistory[len(m.inputHistory)-1000:]
				}
			}
			m.historyIdx = -1
			m.historySaved = ""

			m.input.SetValue("")
			m.cmdMenuOpen = false
			m.cmdMenuIdx = 0

			return m.dispatchInput(value)
		}

	// ── Send notifications ────────────────────────────────────────────
	case snapshotMsg:
		snap := msg.snap
		m.live = &snap
		m.mode = modeStreaming
		return m, waitForStream(m.events)

	case outcomeMsg:
		next, cmd := m.handleOutcome(msg.out)
		return next, tea.Batch(cmd, waitForStream(m.events))

	case conversationsChangedMsg:
		return m, waitForStream(m.events)

	// ── Async results ─────────────────────────────────────────────────
	case conversationsListedMsg:
		return m.handleConversationsListed(msg)

	case conversationOpenedMsg:
		return m.handleConversationOpened(msg)
	}

	// Update sub-components
	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	newVal := m.input.Value()
	if newVal != m.lastInputVal {
		m.lastInputVal = newVal
		if m.historyIdx != -1 {
			if m.historyIdx < len(m.inputHistory) && m.inputHistory[m.historyIdx] != newVal {
				m.historyIdx = -1
				m.historySaved = ""
			}
		}
		m.cmdMenuOpen = strings.HasPrefix(newVal, "/")
		m.cmdMenuIdx = 0
	}

	return m, tea.Batch(cmds...)
}

// handleOutcome ends the live exchange. A send superseded by a newer one
// finishes while the newer one is still pending; its question is not
// restored because the user has already moved on.
func (m model) handleOutcome(out session.Outcome) (tea.Model, tea.Cmd) {
	if m.pending > 0 {
		m.pending--
	}
	if m.live != nil && m.live.UserMessageID == out.Last.UserMessageID {
		m.live = nil
	}
	superseded := m.pending > 0
	if !superseded {
		m.mode = modeIdle
		m.live = nil
	}

	switch out.Phase {
	case session.PhaseCommitted:
		var cmds []tea.Cmd
		if out.User != nil && out.Message != nil {
			cmds = append(cmds, tea.Println(renderCommitted(m.renderer, *out.User, *out.Message, m.width)))
		}
		if out.NewConversation {
			cmds = append(cmds, tea.Println(dimStyle.Render("  Conversation: "+out.ConversationID)))
		}
		m.rememberConversation(out.ConversationID)
		return m, tea.Sequence(cmds...)

	case session.PhaseFailed:
		if !superseded {
			m.restoreInput(out.RestoreInput)
		}
		return m, tea.Println(errorMsgStyle.Render("  ✗ " + out.Reason))

	case session.PhaseCancelled:
		if !superseded {
			m.restoreInput(out.RestoreInput)
		}
	}
	return m, nil
}

// rememberConversation makes id the conversation resumed on next start.
func (m *model) rememberConversation(id string) {
	if m.cfg.ConversationID == id {
		return
	}
	m.cfg.ConversationID = id
	if err := config.SaveConversation(m.profile, id); err != nil {
		m.log.Warn("saving conversation id", zap.String("conversation_id", id), zap.Error(err))
	}
}

// restoreInput puts a question back into the prompt unless the user has
// started typing something else.
func (m *model) restoreInput(question string) {
	if question == "" || strings.TrimSpace(m.input.Value()) != "" {
		return
	}
	m.input.SetValue(question)
	m.input.CursorEnd()
	m.lastInputVal = question
}

// ─── View ───────────────────────────────────────────────────────────────────
//
// Inline mode: committed output is printed above via tea.Println. View()
// holds the live exchange, the input prompt and hints.

func (m model) View() string {
	if !m.ready {
		return ""
	}

	var s strings.Builder

	if m.mode == modeStreaming {
		if m.live != nil {
			s.WriteString(renderLive(*m.live, m.width))
			s.WriteString("\n")
		}
		status := "Answering..."
		if m.live != nil && m.live.Status != "" {
			status = m.live.Status
		}
		s.WriteString(m.spinner.View() + " " + statusStyle.Render(status))
		s.WriteString("\n")
	}

	s.WriteString(m.input.View())
	s.WriteString("\n")

	sepWidth := min(m.width, 80)
	if sepWidth < 20 {
		sepWidth = 20
	}
	s.WriteString(separatorStyle.Render(strings.Repeat("─", sepWidth)))
	s.WriteString("\n")

	s.WriteString(m.renderHints())

	return s.String()
}

// ─── Hint bar ───────────────────────────────────────────────────────────────

func (m model) renderHints() string {
	if m.cmdMenuOpen {
		if matches := matchCommands(m.input.Value()); len(matches) > 0 {
			return m.renderCommandMenu(matches)
		}
	}
	if m.mode == modeStreaming {
		return hintBarStyle.Render("  Esc cancel   Enter ask instead")
	}
	return hintBarStyle.Render("  ? for help")
}

func (m model) renderCommandMenu(matches []slashCmd) string {
	maxLen := 0
	for _, c := range matches {
		if len(c.name) > maxLen {
			maxLen = len(c.name)
		}
	}

	var lines []string
	for i, c := range matches {
		padded := c.name + strings.Repeat(" ", maxLen-len(c.name))

		var line string
		if i == m.cmdMenuIdx {
			line = "  " + cmdSelectedNameStyle.Render(padded) + "  " + cmdSelectedDescStyle.Render(c.desc)
		} else {
			line = "  " + cmdNameStyle.Render(padded) + "  " + cmdDescStyle.Render(c.desc)
		}
		lines = append(lines, line)
	}

	lines = append(lines, hintBarStyle.Render("  ↑↓ navigate  Tab/Enter select"))

	return strings.Join(lines, "\n")
}

// matchCommands returns all slash commands matching a prefix.
func matchCommands(prefix string) []slashCmd {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "/" {
		return slashCommands
	}
	var matches []slashCmd
	for _, c := range slashCommands {
		if strings.HasPrefix(c.name, prefix) {
			matches = append(matches, c)
		}
	}
	return matches
}

func truncateID(s string) string {
	if len(s) > 20 {
		return s[:8] + "..." + s[len(s)-4:]
	}
	return s
}

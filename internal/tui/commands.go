package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"policyqa-cli/internal/config"
	"policyqa-cli/internal/session"
)

// ─── Input dispatcher ───────────────────────────────────────────────────────

func (m model) dispatchInput(input string) (tea.Model, tea.Cmd) {
	if input == "?" {
		return m.cmdHelp()
	}
	if strings.HasPrefix(input, "/") {
		return m.dispatchCommand(input)
	}
	return m.cmdAsk(input)
}

func (m model) dispatchCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help", "/h":
		return m.cmdHelp()
	case "/new":
		return m.cmdNew()
	case "/conversations", "/c":
		return m.cmdConversations()
	case "/open":
		return m.cmdOpen(args)
	case "/config":
		return m.cmdConfig()
	case "/clear":
		return m.cmdClear()
	case "/quit", "/exit", "/q":
		m.coordinator.Cancel()
		return m, tea.Quit
	default:
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Unknown command: %s (type /help)", cmd)))
	}
}

// ─── /help ──────────────────────────────────────────────────────────────────

func (m model) cmdHelp() (tea.Model, tea.Cmd) {
	pad := func(s string, w int) string {
		for len(s) < w {
			s += " "
		}
		return s
	}

	lines := []tea.Cmd{
		tea.Println(""),
		tea.Println(dimStyle.Render("  Commands:")),
		tea.Println(""),
		tea.Println("  " + pad(hintKeyStyle.Render("/new"), 30) + dimStyle.Render("Start a new conversation")),
		tea.Println("  " + pad(hintKeyStyle.Render("/conversations"), 30) + dimStyle.Render("List conversations")),
		tea.Println("  " + pad(hintKeyStyle.Render("/open <id>"), 30) + dimStyle.Render("Continue a conversation")),
		tea.Println("  " + pad(hintKeyStyle.Render("/config"), 30) + dimStyle.Render("Show current configuration")),
		tea.Println("  " + pad(hintKeyStyle.Render("/clear"), 30) + dimStyle.Render("Clear the screen")),
		tea.Println("  " + pad(hintKeyStyle.Render("/quit"), 30) + dimStyle.Render("Exit Policy QA")),
		tea.Println(""),
		tea.Println(dimStyle.Render("  Esc cancels an answer. Asking again while one streams replaces it.")),
		tea.Println(""),
	}
	return m, tea.Sequence(lines...)
}

// ─── Ask ────────────────────────────────────────────────────────────────────

func (m model) cmdAsk(question string) (tea.Model, tea.Cmd) {
	m.mode = modeStreaming
	m.pending++
	return m, sendQuestion(m.coordinator, question)
}

// ─── /new ───────────────────────────────────────────────────────────────────

func (m model) cmdNew() (tea.Model, tea.Cmd) {
	m.coordinator.Cancel()
	m.history.Reset()
	m.live = nil
	m.rememberConversation("")
	return m, tea.Println(successMsgStyle.Render("  ✓ New conversation. Your next question starts fresh."))
}

// ─── /conversations ─────────────────────────────────────────────────────────

type conversationsListedMsg struct {
	list []session.Conversation
	err  error
}

func (m model) cmdConversations() (tea.Model, tea.Cmd) {
	history := m.history
	return m, tea.Sequence(
		tea.Println(statusStyle.Render("  ⟳ Loading conversations...")),
		func() tea.Msg {
			list, err := history.Refresh(context.Background())
			return conversationsListedMsg{list: list, err: err}
		},
	)
}

func (m model) handleConversationsListed(msg conversationsListedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Failed to load conversations: %v", msg.err)))
	}
	return m, tea.Println(renderConversations(msg.list, m.history.ConversationID()))
}

// ─── /open ──────────────────────────────────────────────────────────────────

type conversationOpenedMsg struct {
	id   string
	msgs []session.Message
	err  error
}

func openConversation(history *session.History, id string) tea.Cmd {
	return func() tea.Msg {
		msgs, err := history.Open(context.Background(), id)
		return conversationOpenedMsg{id: id, msgs: msgs, err: err}
	}
}

func (m model) cmdOpen(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		if id := m.history.ConversationID(); id != "" {
			return m, tea.Println(dimStyle.Render(fmt.Sprintf("  Active conversation: %s", id)))
		}
		return m, tea.Println(dimStyle.Render("  Usage: /open <conversation-id>"))
	}

	m.coordinator.Cancel()
	m.live = nil
	id := args[0]
	return m, tea.Sequence(
		tea.Println(statusStyle.Render(fmt.Sprintf("  ⟳ Opening %s...", truncateID(id)))),
		openConversation(m.history, id),
	)
}

func (m model) handleConversationOpened(msg conversationOpenedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Failed to open conversation: %v", msg.err)))
	}

	m.rememberConversation(msg.id)

	cmds := []tea.Cmd{
		tea.Println(successMsgStyle.Render(fmt.Sprintf("  ✓ Conversation %s (%d messages)", msg.id, len(msg.msgs)))),
	}
	if len(msg.msgs) > 0 {
		cmds = append(cmds, tea.Println(renderTranscript(m.renderer, msg.msgs, m.width)))
	}
	return m, tea.Sequence(cmds...)
}

// ─── /config ────────────────────────────────────────────────────────────────

func (m model) cmdConfig() (tea.Model, tea.Cmd) {
	val := func(s string) string {
		if s == "" {
			return dimStyle.Render("(not set)")
		}
		return s
	}
	token := dimStyle.Render("(not set)")
	if m.cfg.Token != "" {
		end := min(12, len(m.cfg.Token))
		token = m.cfg.Token[:end] + "..."
	}

	return m, tea.Sequence(
		tea.Println(""),
		tea.Println(dimStyle.Render("  Configuration:")),
		tea.Println(fmt.Sprintf("    Profile:      %s", config.ProfileName(m.profile))),
		tea.Println(fmt.Sprintf("    Server:       %s", val(m.cfg.Server))),
		tea.Println(fmt.Sprintf("    User:         %s", val(m.cfg.Username))),
		tea.Println(fmt.Sprintf("    Conversation: %s", val(m.history.ConversationID()))),
		tea.Println(fmt.Sprintf("    Token:        %s", token)),
		tea.Println(""),
	)
}

// ─── /clear ─────────────────────────────────────────────────────────────────

func (m model) cmdClear() (tea.Model, tea.Cmd) {
	return m, tea.ClearScreen
}

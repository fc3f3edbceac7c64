package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"policyqa-cli/internal/session"
)

// ─── Messages sent from the send goroutine to Bubble Tea ────────────────────

type snapshotMsg struct {
	snap session.Snapshot
}

type outcomeMsg struct {
	out session.Outcome
}

type conversationsChangedMsg struct {
	list []session.Conversation
}

// ─── Observer ───────────────────────────────────────────────────────────────
//
// Sends run in a tea.Cmd goroutine. Their notifications are forwarded over
// one long-lived channel that the model drains with waitForStream, re-armed
// after every message.

type chanObserver struct {
	ch chan<- tea.Msg
}

// OnSnapshot never blocks the send: when the UI falls behind a snapshot is
// dropped, since the next one supersedes it.
func (o chanObserver) OnSnapshot(s session.Snapshot) {
	select {
	case o.ch <- snapshotMsg{snap: s}:
	default:
	}
}

func (o chanObserver) OnFinished(out session.Outcome) {
	o.ch <- outcomeMsg{out: out}
}

func (o chanObserver) OnConversations(list []session.Conversation) {
	o.ch <- conversationsChangedMsg{list: list}
}

// waitForStream reads the next message from the channel.
func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// sendQuestion runs one send to completion. Its results arrive through the
// observer channel, so the command itself produces no message.
func sendQuestion(c *session.Coordinator, question string) tea.Cmd {
	return func() tea.Msg {
		c.Send(context.Background(), question)
		return nil
	}
}

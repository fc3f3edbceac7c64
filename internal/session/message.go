// Package session assembles one chat exchange from stream events and
// reconciles the optimistic user message with confirmed history.
//
// A send moves through Idle → Streaming → {Committed, Failed, Cancelled}.
// The terminal phases are absorbing; every send gets a fresh Reconciler.
package session

import (
	"time"

	"policyqa-cli/internal/api"
	"policyqa-cli/internal/stream"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Conversation struct {
	ID        string
	Title     *string
	CreatedAt time.Time
}

// DisplayTitle returns the title or a placeholder for untitled conversations.
func (c Conversation) DisplayTitle() string {
	if c.Title == nil || *c.Title == "" {
		return "(untitled)"
	}
	return *c.Title
}

// Message is one turn of a conversation. Committed messages are never
// modified; Speculative marks a user message still awaiting confirmation.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	CreatedAt      time.Time
	Sources        []stream.Source
	Suggestions    []string
	Speculative    bool
}

func conversationFromAPI(c api.Conversation) Conversation {
	return Conversation{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt}
}

func messageFromAPI(r api.MessageRecord) Message {
	return Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           Role(r.Role),
		Content:        r.Content,
		CreatedAt:      r.CreatedAt,
		Sources:        r.Sources,
		Suggestions:    r.Suggestions,
	}
}

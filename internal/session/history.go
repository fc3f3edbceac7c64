package session

import (
	"context"
	"fmt"
	"sync"

	"policyqa-cli/internal/api"
)

// Backend is the part of the API the history store reads from.
type Backend interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]api.MessageRecord, error)
}

// History is the visible conversation shared between a send and the UI.
// It changes only when a send starts, commits or rolls back, and when the
// user switches conversations.
type History struct {
	backend Backend

	mu             sync.RWMutex
	conversationID string
	messages       []Message
	conversations  []Conversation
}

func NewHistory(backend Backend, conversationID string) *History {
	return &History{backend: backend, conversationID: conversationID}
}

// ConversationID returns the confirmed conversation id, or "" when the next
// send starts a new conversation.
func (h *History) ConversationID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conversationID
}

func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Conversations() []Conversation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conversation, len(h.conversations))
	copy(out, h.conversations)
	return out
}

// Reset clears the view so the next send starts a new conversation.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conversationID = ""
	h.messages = nil
}

// Open replaces the view with the committed messages of a conversation.
func (h *History) Open(ctx context.Context, conversationID string) ([]Message, error) {
	records, err := h.backend.ConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		m := messageFromAPI(r)
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		msgs = append(msgs, m)
	}

	h.mu.Lock()
	h.conversationID = conversationID
	h.messages = msgs
	h.mu.Unlock()

	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Refresh reloads the conversation list from the server.
func (h *History) Refresh(ctx context.Context) ([]Conversation, error) {
	list, err := h.backend.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	convs := make([]Conversation, 0, len(list))
	for _, c := range list {
		convs = append(convs, conversationFromAPI(c))
	}

	h.mu.Lock()
	h.conversations = convs
	h.mu.Unlock()
	return h.Conversations(), nil
}

func (h *History) appendSpeculative(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m.Speculative = true
	h.messages = append(h.messages, m)
}

// retract removes the speculative message with the given id. It reports
// false when the view no longer holds it, e.g. after Reset.
func (h *History) retract(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, m := range h.messages {
		if m.ID == id && m.Speculative {
			h.messages = append(h.messages[:i:i], h.messages[i+1:]...)
			return true
		}
	}
	return false
}

// commit confirms the speculative user message and appends the answer.
// When the user has switched away from the view in the meantime only the
// conversation list learns about the commit.
func (h *History) commit(user, assistant Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	user.Speculative = false
	for i, m := range h.messages {
		if m.ID == user.ID && m.Speculative {
			h.messages[i] = user
			h.messages = append(h.messages, assistant)
			h.conversationID = user.ConversationID
			break
		}
	}
	h.learnLocked(Conversation{ID: user.ConversationID, CreatedAt: user.CreatedAt})
}

// learn adds a conversation to the list if it is not already present.
func (h *History) learn(c Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.learnLocked(c)
}

func (h *History) learnLocked(c Conversation) {
	for _, existing := range h.conversations {
		if existing.ID == c.ID {
			return
		}
	}
	h.conversations = append([]Conversation{c}, h.conversations...)
}

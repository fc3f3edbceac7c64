package api

import (
	"time"

	"policyqa-cli/internal/stream"
)

// ChatRequest is the body of POST /api/chat/stream. ConversationID is sent as
// null for a new conversation.
type ChatRequest struct {
	Question       string  `json:"question"`
	ConversationID *string `json:"conversation_id"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageRecord struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
	Sources        []stream.Source `json:"sources,omitempty"`
	Suggestions    []string        `json:"suggestions,omitempty"`
}

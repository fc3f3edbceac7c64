package api

import (
	"context"
	"io"
)

// ChatAPI defines the interface for the policy QA backend.
// *Client satisfies this interface. TUI and tests can use mock implementations.
type ChatAPI interface {
	StreamChat(ctx context.Context, question, conversationID string) (io.ReadCloser, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]MessageRecord, error)
}

var _ ChatAPI = (*Client)(nil)

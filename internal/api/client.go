package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"policyqa-cli/internal/config"

	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 64 * 1024

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	log        *zap.Logger
}

// NewClient builds a client from resolved config. The HTTP client carries no
// timeout; streams last as long as the caller's context.
func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Server, "/"),
		httpClient: &http.Client{},
		token:      cfg.Token,
		log:        log.Named("api"),
	}
}

func (c *Client) setHeaders(req *http.Request, hasBody bool, accept string) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// --- Chat (Streaming) ---

// StreamChat posts a question and returns the open event stream. A nil
// conversation id (empty string) starts a new conversation. The caller must
// close the returned body; cancelling ctx aborts the pending read.
func (c *Client) StreamChat(ctx context.Context, question, conversationID string) (io.ReadCloser, error) {
	reqBody := ChatRequest{Question: question}
	if conversationID != "" {
		reqBody.ConversationID = &conversationID
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, true, "text/event-stream")

	c.log.Debug("opening chat stream",
		zap.String("conversation_id", conversationID),
		zap.Int("question_len", len(question)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := newStatusError(resp.StatusCode, errBody)
		c.log.Warn("chat stream rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("detail", serr.Detail))
		return nil, serr
	}

	return resp.Body, nil
}

// --- Conversations ---

func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var resp []Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]MessageRecord, error) {
	var resp []MessageRecord
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// --- Generic JSON helper ---

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody interface{}, result interface{}) error {
	var bodyReader io.Reader
	hasBody := reqBody != nil && method != http.MethodGet
	if hasBody {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, hasBody, "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

package tui

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"policyqa-cli/internal/api"
	"policyqa-cli/internal/config"
)

// fakeAPI implements api.ChatAPI for testing.
type fakeAPI struct {
	mu       sync.Mutex
	body     string
	block    bool
	started  chan struct{}
	convs    []api.Conversation
	messages map[string][]api.MessageRecord
	err      error
}

func (f *fakeAPI) StreamChat(ctx context.Context, question, conversationID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.block {
		return blockingBody{ctx: ctx}, nil
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]api.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.convs, nil
}

func (f *fakeAPI) ConversationMessages(ctx context.Context, id string) ([]api.MessageRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	msgs, ok := f.messages[id]
	if !ok {
		return nil, &api.StatusError{StatusCode: 404, Detail: "conversation not found"}
	}
	return msgs, nil
}

var _ api.ChatAPI = (*fakeAPI)(nil)

type blockingBody struct {
	ctx context.Context
}

func (b blockingBody) Read(p []byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b blockingBody) Close() error { return nil }

const overtimeStream = "data: {\"type\":\"status\",\"content\":\"searching\"}\n\n" +
	"data: {\"type\":\"sources\",\"sources\":[{\"type\":\"law\",\"title\":\"勞基法第24條\"}]}\n\n" +
	"data: {\"type\":\"token\",\"content\":\"加班費\"}\n\n" +
	"data: {\"type\":\"token\",\"content\":\"依...\"}\n\n" +
	"data: {\"type\":\"suggestions\",\"items\":[\"還有其他加班規定嗎？\"]}\n\n" +
	"data: {\"type\":\"done\",\"conversation_id\":\"conv-1\",\"message_id\":\"msg-9\"}\n\n"

// newTestModel returns a sized model whose config saves under a temp home.
func newTestModel(t *testing.T, client api.ChatAPI) model {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := &config.Config{Server: "http://localhost:8000", Token: "tok", Username: "amy"}
	m := newModel(Options{Version: "test", Config: cfg, Client: client, GlamourStyle: "notty"})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(model)
}

func typeAndEnter(t *testing.T, m model, text string) (model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(model), cmd
}

// drain feeds observer notifications into the model until an outcome has
// been handled.
func drain(t *testing.T, m model) model {
	t.Helper()
	for {
		msg := <-m.events
		updated, _ := m.Update(msg)
		m = updated.(model)
		if _, ok := msg.(outcomeMsg); ok {
			return m
		}
	}
}

package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"policyqa-cli/internal/api"
)

// streamFunc produces the body for one StreamChat call.
type streamFunc func(ctx context.Context) (io.ReadCloser, error)

type chatCall struct {
	Question       string
	ConversationID string
}

// fakeBackend is a scripted ChatAPI.
type fakeBackend struct {
	mu        sync.Mutex
	streams   []streamFunc
	calls     []chatCall
	convs     []api.Conversation
	listErr   error
	listCalls int
	messages  map[string][]api.MessageRecord
}

func (f *fakeBackend) StreamChat(ctx context.Context, question, conversationID string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chatCall{Question: question, ConversationID: conversationID})
	if len(f.streams) == 0 {
		f.mu.Unlock()
		return nil, errors.New("no scripted stream")
	}
	next := f.streams[0]
	f.streams = f.streams[1:]
	f.mu.Unlock()
	return next(ctx)
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.convs, nil
}

func (f *fakeBackend) ConversationMessages(ctx context.Context, id string) ([]api.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.messages[id]
	if !ok {
		return nil, &api.StatusError{StatusCode: 404, Detail: "conversation not found"}
	}
	return msgs, nil
}

func (f *fakeBackend) Calls() []chatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatCall(nil), f.calls...)
}

var _ api.ChatAPI = (*fakeBackend)(nil)

// frames returns a stream that writes the given lines, each as one event
// separated by a blank line.
func frames(lines ...string) streamFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(lines, "\n\n") + "\n\n")), nil
	}
}

func rawBody(body string, wrap func(io.Reader) io.Reader) streamFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(wrap(strings.NewReader(body))), nil
	}
}

func failing(err error) streamFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return nil, err
	}
}

// blockingBody delivers prefix, then blocks until ctx is done.
type blockingBody struct {
	ctx    context.Context
	prefix *strings.Reader
}

func (b *blockingBody) Read(p []byte) (int, error) {
	if b.prefix.Len() > 0 {
		return b.prefix.Read(p)
	}
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *blockingBody) Close() error { return nil }

func blocking(started chan<- struct{}, prefix ...string) streamFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		close(started)
		text := ""
		if len(prefix) > 0 {
			text = strings.Join(prefix, "\n\n") + "\n\n"
		}
		return &blockingBody{ctx: ctx, prefix: strings.NewReader(text)}, nil
	}
}

// recorder collects observer notifications.
type recorder struct {
	mu            sync.Mutex
	snapshots     []Snapshot
	outcomes      []Outcome
	conversations [][]Conversation
}

func (r *recorder) OnSnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) OnFinished(out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
}

func (r *recorder) OnConversations(list []Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = append(r.conversations, list)
}

func (r *recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *recorder) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snapshots...)
}

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestReconciler(t *testing.T, b *fakeBackend, h *History, obs Observer) *Reconciler {
	t.Helper()
	r := NewReconciler(b, h, obs, zap.NewNop())
	n := 0
	r.newID = func() string {
		n++
		return "local-" + string(rune('0'+n))
	}
	r.now = func() time.Time { return fixedNow }
	return r
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

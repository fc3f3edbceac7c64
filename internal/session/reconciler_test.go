package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyqa-cli/internal/api"
	"policyqa-cli/internal/stream"
)

var overtimeFrames = []string{
	`data: {"type":"status","content":"searching"}`,
	`data: {"type":"sources","sources":[{"type":"law","title":"勞基法第24條","score":0.92}]}`,
	`data: {"type":"token","content":"加班費"}`,
	`data: {"type":"token","content":"依..."}`,
	`data: {"type":"suggestions","items":["還有其他加班規定嗎？"]}`,
	`data: {"type":"done","conversation_id":"conv-1","message_id":"msg-9"}`,
}

func TestRunCommitsNewConversation(t *testing.T) {
	backend := &fakeBackend{
		streams: []streamFunc{frames(overtimeFrames...)},
		convs:   []api.Conversation{{ID: "conv-1", Title: strPtr("加班費怎麼算？")}},
	}
	h := NewHistory(backend, "")
	rec := &recorder{}

	out := newTestReconciler(t, backend, h, rec).Run(context.Background(), "加班費怎麼算？")

	require.Equal(t, PhaseCommitted, out.Phase)
	require.NoError(t, out.Err)
	assert.Equal(t, "conv-1", out.ConversationID)
	assert.True(t, out.NewConversation)

	require.NotNil(t, out.Message)
	assert.Equal(t, "msg-9", out.Message.ID)
	assert.Equal(t, RoleAssistant, out.Message.Role)
	assert.Equal(t, "conv-1", out.Message.ConversationID)
	assert.Equal(t, "加班費依...", out.Message.Content)
	require.Len(t, out.Message.Sources, 1)
	assert.Equal(t, "勞基法第24條", out.Message.Sources[0].Title)
	assert.Equal(t, stream.SourceLaw, out.Message.Sources[0].Type)
	assert.Equal(t, []string{"還有其他加班規定嗎？"}, out.Message.Suggestions)

	require.NotNil(t, out.User)
	assert.Equal(t, "local-1", out.User.ID)
	assert.Equal(t, "conv-1", out.User.ConversationID)
	assert.False(t, out.User.Speculative)

	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "加班費怎麼算？", msgs[0].Content)
	assert.Equal(t, "conv-1", msgs[0].ConversationID)
	assert.False(t, msgs[0].Speculative)
	assert.Equal(t, "msg-9", msgs[1].ID)
	assert.Equal(t, "conv-1", h.ConversationID())

	convs := h.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-1", convs[0].ID)

	assert.Equal(t, []chatCall{{Question: "加班費怎麼算？", ConversationID: ""}}, backend.Calls())
	assert.Len(t, rec.Outcomes(), 1)
	require.Len(t, rec.conversations, 1)
	assert.Equal(t, "conv-1", rec.conversations[0][0].ID)
}

func TestRunKeepsNewConversationWhenRefreshFails(t *testing.T) {
	backend := &fakeBackend{
		streams: []streamFunc{frames(overtimeFrames...)},
		listErr: errors.New("list unavailable"),
	}
	h := NewHistory(backend, "")

	out := newTestReconciler(t, backend, h, nil).Run(context.Background(), "加班費怎麼算？")

	require.Equal(t, PhaseCommitted, out.Phase)
	convs := h.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-1", convs[0].ID)
	assert.Equal(t, "(untitled)", convs[0].DisplayTitle())
}

func TestRunContinuesExistingConversation(t *testing.T) {
	backend := &fakeBackend{
		streams: []streamFunc{frames(
			`data: {"type":"token","content":"可以。"}`,
			`data: {"type":"done","message_id":"msg-3"}`,
		)},
		messages: map[string][]api.MessageRecord{
			"conv-7": {
				{ID: "m1", Role: "user", Content: "特休幾天？"},
				{ID: "m2", Role: "assistant", Content: "依年資計算。"},
			},
		},
	}
	h := NewHistory(backend, "")
	_, err := h.Open(context.Background(), "conv-7")
	require.NoError(t, err)

	out := newTestReconciler(t, backend, h, nil).Run(context.Background(), "可以分次休嗎？")

	require.Equal(t, PhaseCommitted, out.Phase)
	assert.Equal(t, "conv-7", out.ConversationID)
	assert.False(t, out.NewConversation)
	assert.Equal(t, 0, backend.listCalls)
	assert.Equal(t, "conv-7", backend.Calls()[0].ConversationID)

	msgs := h.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "可以分次休嗎？", msgs[2].Content)
	assert.Equal(t, "conv-7", msgs[2].ConversationID)
	assert.Equal(t, "可以。", msgs[3].Content)
}

func TestRunFailureRestoresInput(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{frames(
		`data: {"type":"status","content":"thinking"}`,
		`data: {"type":"error","content":"internal failure"}`,
	)}}
	h := NewHistory(backend, "")
	rec := &recorder{}

	out := newTestReconciler(t, backend, h, rec).Run(context.Background(), "特休假怎麼算？")

	require.Equal(t, PhaseFailed, out.Phase)
	assert.ErrorIs(t, out.Err, ErrApplication)
	assert.Equal(t, "internal failure", out.Reason)
	assert.Equal(t, "特休假怎麼算？", out.RestoreInput)
	assert.Nil(t, out.Message)
	assert.Empty(t, h.Messages())
	assert.Empty(t, h.Conversations())

	snaps := rec.Snapshots()
	require.NotEmpty(t, snaps)
	assert.Equal(t, "thinking", snaps[len(snaps)-1].Status)
	assert.Len(t, rec.Outcomes(), 1)
}

func TestRunIncompleteStreamFails(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{frames(
		`data: {"type":"token","content":"依勞基法"}`,
	)}}
	h := NewHistory(backend, "")

	out := newTestReconciler(t, backend, h, nil).Run(context.Background(), "加班費怎麼算？")

	require.Equal(t, PhaseFailed, out.Phase)
	assert.ErrorIs(t, out.Err, ErrIncompleteStream)
	assert.Equal(t, "加班費怎麼算？", out.RestoreInput)
	assert.Equal(t, "依勞基法", out.Last.Content)
	assert.Empty(t, h.Messages())
}

func TestRunTransportFailure(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{
		failing(&api.StatusError{StatusCode: 503, Detail: "service unavailable"}),
	}}
	h := NewHistory(backend, "")

	out := newTestReconciler(t, backend, h, nil).Run(context.Background(), "q")

	require.Equal(t, PhaseFailed, out.Phase)
	assert.ErrorIs(t, out.Err, ErrTransport)
	var statusErr *api.StatusError
	require.ErrorAs(t, out.Err, &statusErr)
	assert.Equal(t, 503, statusErr.StatusCode)
	assert.Equal(t, "service unavailable", out.Reason)
	assert.Empty(t, h.Messages())
}

func TestRunReadErrorIsTransportFailure(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{
		func(ctx context.Context) (io.ReadCloser, error) {
			r := io.MultiReader(
				strings.NewReader("data: {\"type\":\"token\",\"content\":\"a\"}\n"),
				iotest.ErrReader(errors.New("connection reset")),
			)
			return io.NopCloser(r), nil
		},
	}}
	h := NewHistory(backend, "")

	out := newTestReconciler(t, backend, h, nil).Run(context.Background(), "q")

	require.Equal(t, PhaseFailed, out.Phase)
	assert.ErrorIs(t, out.Err, ErrTransport)
	assert.Equal(t, "a", out.Last.Content)
}

func TestRunDoneWithoutConversationOnNewConversationFails(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{frames(
		`data: {"type":"token","content":"x"}`,
		`data: {"type":"done","message_id":"msg-1"}`,
	)}}
	h := NewHistory(backend, "")

	out := newTestReconciler(t, backend, h, nil).Run(context.Background(), "q")

	require.Equal(t, PhaseFailed, out.Phase)
	assert.ErrorIs(t, out.Err, ErrUnknownConversation)
	assert.Empty(t, h.Messages())
}

func TestRunToleratesMalformedFrames(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{frames(
		`: keep-alive`,
		`data: {"type":"token","content":"加班"}`,
		`data: {not json`,
		`data: {"type":"telemetry","content":"x"}`,
		`event: message`,
		`data: {"type":"token","content":"費"}`,
		`data: {"type":"done","conversation_id":"conv-2","message_id":"msg-2"}`,
	)}}

	out := newTestReconciler(t, backend, NewHistory(backend, ""), nil).Run(context.Background(), "q")

	require.Equal(t, PhaseCommitted, out.Phase)
	assert.Equal(t, "加班費", out.Message.Content)
}

func TestRunIsIndependentOfChunking(t *testing.T) {
	body := strings.Join(overtimeFrames, "\n\n") + "\n\n"
	wraps := map[string]func(io.Reader) io.Reader{
		"whole":    func(r io.Reader) io.Reader { return r },
		"one byte": iotest.OneByteReader,
		"half":     iotest.HalfReader,
	}

	for name, wrap := range wraps {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{streams: []streamFunc{rawBody(body, wrap)}}
			out := newTestReconciler(t, backend, NewHistory(backend, ""), nil).Run(context.Background(), "加班費怎麼算？")

			require.Equal(t, PhaseCommitted, out.Phase)
			assert.Equal(t, "加班費依...", out.Message.Content)
			assert.Equal(t, "msg-9", out.Message.ID)
			assert.Len(t, out.Message.Sources, 1)
		})
	}
}

func TestRunSourcesReplaceWholesale(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{frames(
		`data: {"type":"sources","sources":[{"type":"policy","title":"A"},{"type":"policy","title":"B"}]}`,
		`data: {"type":"sources","sources":[{"type":"law","title":"C"}]}`,
		`data: {"type":"suggestions","items":["x","y"]}`,
		`data: {"type":"suggestions","items":["z"]}`,
		`data: {"type":"done","conversation_id":"c","message_id":"m"}`,
	)}}

	out := newTestReconciler(t, backend, NewHistory(backend, ""), nil).Run(context.Background(), "q")

	require.Equal(t, PhaseCommitted, out.Phase)
	require.Len(t, out.Message.Sources, 1)
	assert.Equal(t, "C", out.Message.Sources[0].Title)
	assert.Equal(t, []string{"z"}, out.Message.Suggestions)
}

func TestRunIgnoresFramesAfterDone(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{frames(
		`data: {"type":"token","content":"ok"}`,
		`data: {"type":"done","conversation_id":"c","message_id":"m"}`,
		`data: {"type":"suggestions","items":["late"]}`,
		`data: {"type":"token","content":"late"}`,
	)}}

	out := newTestReconciler(t, backend, NewHistory(backend, ""), nil).Run(context.Background(), "q")

	require.Equal(t, PhaseCommitted, out.Phase)
	assert.Equal(t, "ok", out.Message.Content)
	assert.Empty(t, out.Message.Suggestions)
}

func TestRunCancelledRollsBackSilently(t *testing.T) {
	started := make(chan struct{})
	backend := &fakeBackend{streams: []streamFunc{
		blocking(started, `data: {"type":"token","content":"partial"}`),
	}}
	h := NewHistory(backend, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Outcome, 1)
	go func() {
		done <- newTestReconciler(t, backend, h, nil).Run(ctx, "特休假怎麼算？")
	}()
	<-started
	cancel()
	out := <-done

	require.Equal(t, PhaseCancelled, out.Phase)
	assert.NoError(t, out.Err)
	assert.Empty(t, out.Reason)
	assert.Equal(t, "特休假怎麼算？", out.RestoreInput)
	assert.Empty(t, h.Messages())
}

func TestRunShowsSpeculativeMessageWhileStreaming(t *testing.T) {
	started := make(chan struct{})
	backend := &fakeBackend{streams: []streamFunc{blocking(started)}}
	h := NewHistory(backend, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- newTestReconciler(t, backend, h, nil).Run(ctx, "q")
	}()
	<-started

	msgs := h.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Speculative)
	assert.Equal(t, "q", msgs[0].Content)

	cancel()
	<-done
	assert.Empty(t, h.Messages())
}

func TestRunRejectsReuse(t *testing.T) {
	backend := &fakeBackend{streams: []streamFunc{frames(
		`data: {"type":"done","conversation_id":"c","message_id":"m"}`,
	)}}
	r := newTestReconciler(t, backend, NewHistory(backend, ""), nil)

	first := r.Run(context.Background(), "q")
	require.Equal(t, PhaseCommitted, first.Phase)

	second := r.Run(context.Background(), "again")
	assert.ErrorIs(t, second.Err, ErrIllegalTransition)
	assert.Equal(t, PhaseCommitted, second.Phase)
	assert.Len(t, backend.Calls(), 1)
}

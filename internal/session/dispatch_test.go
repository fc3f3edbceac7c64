package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"policyqa-cli/internal/stream"
)

func TestApply(t *testing.T) {
	law := stream.Source{Type: stream.SourceLaw, Title: "勞基法第24條", Score: floatPtr(0.9)}
	policy := stream.Source{Type: stream.SourcePolicy, Title: "員工手冊"}

	tests := []struct {
		name        string
		events      []stream.Event
		changed     []bool
		status      string
		content     string
		sources     []stream.Source
		suggestions []string
		terminal    bool
	}{
		{
			name:    "status before tokens",
			events:  []stream.Event{stream.StatusEvent{Text: "searching"}, stream.StatusEvent{Text: "thinking"}},
			changed: []bool{true, true},
			status:  "thinking",
		},
		{
			name: "token clears status and later status is ignored",
			events: []stream.Event{
				stream.StatusEvent{Text: "thinking"},
				stream.TokenEvent{Text: "加班費"},
				stream.StatusEvent{Text: "still thinking"},
				stream.TokenEvent{Text: "依..."},
			},
			changed: []bool{true, true, false, true},
			content: "加班費依...",
		},
		{
			name: "sources replace wholesale",
			events: []stream.Event{
				stream.SourcesEvent{Items: []stream.Source{law, policy}},
				stream.SourcesEvent{Items: []stream.Source{policy}},
			},
			changed: []bool{true, true},
			sources: []stream.Source{policy},
		},
		{
			name: "empty sources list clears",
			events: []stream.Event{
				stream.SourcesEvent{Items: []stream.Source{law}},
				stream.SourcesEvent{Items: []stream.Source{}},
			},
			changed: []bool{true, true},
			sources: []stream.Source{},
		},
		{
			name: "suggestions replace wholesale",
			events: []stream.Event{
				stream.SuggestionsEvent{Items: []string{"a", "b"}},
				stream.SuggestionsEvent{Items: []string{"c"}},
			},
			changed:     []bool{true, true},
			suggestions: []string{"c"},
		},
		{
			name: "nothing after done",
			events: []stream.Event{
				stream.TokenEvent{Text: "ok"},
				stream.DoneEvent{ConversationID: "c", MessageID: "m"},
				stream.TokenEvent{Text: "late"},
				stream.SuggestionsEvent{Items: []string{"late"}},
				stream.ErrorEvent{Message: "late"},
			},
			changed:  []bool{true, true, false, false, false},
			content:  "ok",
			terminal: true,
		},
		{
			name: "nothing after error",
			events: []stream.Event{
				stream.ErrorEvent{Message: "boom"},
				stream.DoneEvent{ConversationID: "c"},
			},
			changed:  []bool{true, false},
			terminal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(Message{ID: "u1", Role: RoleUser, Content: "q"})
			var changed []bool
			for _, ev := range tt.events {
				changed = append(changed, s.Apply(ev))
			}

			snap := s.Snapshot()
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.status, snap.Status)
			assert.Equal(t, tt.content, snap.Content)
			assert.Equal(t, tt.sources, snap.Sources)
			assert.Equal(t, tt.suggestions, snap.Suggestions)
			_, terminal := s.Terminal()
			assert.Equal(t, tt.terminal, terminal)
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewState(Message{ID: "u1"})
	s.Apply(stream.SuggestionsEvent{Items: []string{"a"}})

	snap := s.Snapshot()
	snap.Suggestions[0] = "mutated"

	assert.Equal(t, []string{"a"}, s.Snapshot().Suggestions)
}

func TestApplyCountsTokens(t *testing.T) {
	s := NewState(Message{})
	s.Apply(stream.TokenEvent{Text: "a"})
	s.Apply(stream.TokenEvent{Text: ""})
	s.Apply(stream.TokenEvent{Text: "b"})

	assert.Equal(t, 3, s.Snapshot().Tokens)
	assert.Equal(t, "ab", s.Content())
}

package session

import (
	"strings"

	"policyqa-cli/internal/stream"
)

// State is the transient bookkeeping of one send. It is owned by a single
// Reconciler and never shared.
type State struct {
	User Message

	content     strings.Builder
	tokens      int
	status      string
	sources     []stream.Source
	suggestions []string
	terminal    stream.Event
}

func NewState(user Message) *State {
	return &State{User: user}
}

// Content returns the answer text accumulated so far.
func (s *State) Content() string {
	return s.content.String()
}

// Terminal returns the done or error event once one has been applied.
func (s *State) Terminal() (stream.Event, bool) {
	return s.terminal, s.terminal != nil
}

// Snapshot is a copy of the live state handed to observers.
type Snapshot struct {
	UserMessageID string
	Question      string
	Status        string
	Content       string
	Tokens        int
	Sources       []stream.Source
	Suggestions   []string
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		UserMessageID: s.User.ID,
		Question:      s.User.Content,
		Status:        s.status,
		Content:       s.content.String(),
		Tokens:        s.tokens,
		Sources:       cloneSources(s.sources),
		Suggestions:   cloneStrings(s.suggestions),
	}
}

func cloneSources(in []stream.Source) []stream.Source {
	if in == nil {
		return nil
	}
	out := make([]stream.Source, len(in))
	copy(out, in)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

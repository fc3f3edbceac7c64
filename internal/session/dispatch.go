package session

import (
	"fmt"

	"policyqa-cli/internal/stream"
)

// Apply folds one event into the state and reports whether anything changed.
// Once a terminal event has been applied every later event is ignored.
func (s *State) Apply(ev stream.Event) bool {
	if s.terminal != nil {
		return false
	}

	switch e := ev.(type) {
	case stream.StatusEvent:
		// Answer text supersedes progress display.
		if s.tokens > 0 {
			return false
		}
		s.status = e.Text
	case stream.SourcesEvent:
		s.sources = cloneSources(e.Items)
	case stream.TokenEvent:
		s.content.WriteString(e.Text)
		s.tokens++
		s.status = ""
	case stream.SuggestionsEvent:
		s.suggestions = cloneStrings(e.Items)
	case stream.DoneEvent:
		s.terminal = e
	case stream.ErrorEvent:
		s.terminal = e
	default:
		panic(fmt.Sprintf("session: unhandled event type %T", ev))
	}
	return true
}

// Package stream turns a chunked HTTP response body into typed chat events.
//
// The wire format is newline-delimited text; an event-bearing line looks like
//
//	data: {"type":"token","content":"加班費"}
//
// Lines without the marker and payloads that do not parse are skipped.
package stream

// SourceType tags the kind of document a citation points at.
type SourceType string

const (
	SourcePolicy SourceType = "policy"
	SourceLaw    SourceType = "law"
)

// Source is one citation attached to an answer.
type Source struct {
	Type    SourceType `json:"type"`
	Title   string     `json:"title"`
	Score   *float64   `json:"score,omitempty"`
	Snippet *string    `json:"snippet,omitempty"`
}

// Event is one decoded stream frame. The set of implementations is closed:
// StatusEvent, SourcesEvent, TokenEvent, SuggestionsEvent, DoneEvent and
// ErrorEvent.
type Event interface {
	// Kind returns the wire discriminant ("status", "token", ...).
	Kind() string
	isEvent()
}

// StatusEvent is a transient progress line ("searching", "thinking").
type StatusEvent struct {
	Text string
}

// SourcesEvent replaces the citation list of the in-flight answer.
type SourcesEvent struct {
	Items []Source
}

// TokenEvent carries the next fragment of answer text.
type TokenEvent struct {
	Text string
}

// SuggestionsEvent replaces the follow-up question list.
type SuggestionsEvent struct {
	Items []string
}

// DoneEvent terminates a successful stream with the confirmed identifiers.
type DoneEvent struct {
	ConversationID string
	MessageID      string
}

// ErrorEvent terminates a stream with a server-reported failure.
type ErrorEvent struct {
	Message string
}

func (StatusEvent) Kind() string      { return "status" }
func (SourcesEvent) Kind() string     { return "sources" }
func (TokenEvent) Kind() string       { return "token" }
func (SuggestionsEvent) Kind() string { return "suggestions" }
func (DoneEvent) Kind() string        { return "done" }
func (ErrorEvent) Kind() string       { return "error" }

func (StatusEvent) isEvent()      {}
func (SourcesEvent) isEvent()     {}
func (TokenEvent) isEvent()       {}
func (SuggestionsEvent) isEvent() {}
func (DoneEvent) isEvent()        {}
func (ErrorEvent) isEvent()       {}

// IsTerminal reports whether ev ends a stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case DoneEvent, ErrorEvent:
		return true
	}
	return false
}

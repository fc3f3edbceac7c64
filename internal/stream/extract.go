package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Marker prefixes every event-bearing line. Exactly one marker per line is
// accepted; a second frame on the same line makes the payload invalid JSON.
const Marker = "data: "

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrEmptyType   = errors.New("missing event type")
)

// frame is the JSON payload that follows the marker.
type frame struct {
	Type           string   `json:"type"`
	Content        string   `json:"content"`
	Sources        []Source `json:"sources"`
	Items          []string `json:"items"`
	ConversationID string   `json:"conversation_id"`
	MessageID      string   `json:"message_id"`
}

// ParseFrame decodes one payload into an Event.
func ParseFrame(payload []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	var f frame
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decoding frame: trailing data after payload")
	}

	switch f.Type {
	case "status":
		return StatusEvent{Text: f.Content}, nil
	case "sources":
		return SourcesEvent{Items: f.Sources}, nil
	case "token":
		return TokenEvent{Text: f.Content}, nil
	case "suggestions":
		return SuggestionsEvent{Items: f.Items}, nil
	case "done":
		return DoneEvent{ConversationID: f.ConversationID, MessageID: f.MessageID}, nil
	case "error":
		return ErrorEvent{Message: f.Content}, nil
	case "":
		return nil, ErrEmptyType
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

// DropFunc is told about every marker line whose payload was rejected.
type DropFunc func(line string, err error)

// Extractor recognizes event frames among decoded lines.
type Extractor struct {
	dropped int
	onDrop  DropFunc
}

// NewExtractor creates an extractor. onDrop may be nil.
func NewExtractor(onDrop DropFunc) *Extractor {
	return &Extractor{onDrop: onDrop}
}

// Extract returns the event carried by line, if any. Non-marker lines are
// ignored silently; marker lines with a bad payload are counted as dropped.
func (e *Extractor) Extract(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, Marker) {
		return nil, false
	}

	ev, err := ParseFrame([]byte(trimmed[len(Marker):]))
	if err != nil {
		e.dropped++
		if e.onDrop != nil {
			e.onDrop(trimmed, err)
		}
		return nil, false
	}
	return ev, true
}

// Dropped returns how many marker lines failed to parse so far.
func (e *Extractor) Dropped() int {
	return e.dropped
}

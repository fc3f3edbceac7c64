package display

import (
	"fmt"
	"io"
	"strings"

	"policyqa-cli/internal/session"
	"policyqa-cli/internal/stream"
)

// Printer writes a send's progress to a terminal as it happens. It
// implements session.Observer and is used by the non-interactive ask
// command.
type Printer struct {
	w io.Writer

	seenStatus map[string]bool
	sourcesKey string

	printedLen int
	lineOpen   bool

	outcome *session.Outcome
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, seenStatus: make(map[string]bool)}
}

var _ session.Observer = (*Printer)(nil)

func (p *Printer) OnSnapshot(s session.Snapshot) {
	if s.Status != "" && s.Tokens == 0 && !p.seenStatus[s.Status] {
		p.seenStatus[s.Status] = true
		fmt.Fprintf(p.w, "  %s %s\n", warnColor.Sprint("⟳"), s.Status)
	}

	if key := sourcesKey(s.Sources); key != p.sourcesKey {
		p.sourcesKey = key
		if len(s.Sources) > 0 {
			p.endLine()
			fmt.Fprintln(p.w)
			fmt.Fprintln(p.w, "  📎 Sources:")
			FprintSources(p.w, s.Sources)
		}
	}

	// Content is append-only, so only the unseen suffix is written.
	if len(s.Content) > p.printedLen {
		if p.printedLen == 0 {
			fmt.Fprintln(p.w)
		}
		delta := s.Content[p.printedLen:]
		fmt.Fprint(p.w, delta)
		p.printedLen = len(s.Content)
		p.lineOpen = !strings.HasSuffix(delta, "\n")
	}
}

func (p *Printer) OnFinished(out session.Outcome) {
	p.outcome = &out
	p.endLine()

	switch out.Phase {
	case session.PhaseCommitted:
		if out.Message != nil {
			FprintSuggestions(p.w, out.Message.Suggestions)
		}
		fmt.Fprintln(p.w)
		fmt.Fprintf(p.w, "  %s  %s\n", PhaseLabel(out.Phase), Dim("conversation "+out.ConversationID))
	case session.PhaseFailed:
		fmt.Fprintln(p.w)
		fmt.Fprintf(p.w, "  %s %s\n", errColor.Sprint("✗"), out.Reason)
	case session.PhaseCancelled:
		fmt.Fprintln(p.w)
		fmt.Fprintf(p.w, "  %s\n", PhaseLabel(out.Phase))
	}
}

func (p *Printer) OnConversations([]session.Conversation) {}

// Outcome returns the outcome passed to OnFinished, or nil.
func (p *Printer) Outcome() *session.Outcome {
	return p.outcome
}

func (p *Printer) endLine() {
	if p.lineOpen {
		fmt.Fprintln(p.w)
		p.lineOpen = false
	}
}

func sourcesKey(sources []stream.Source) string {
	var b strings.Builder
	for _, s := range sources {
		b.WriteString(string(s.Type))
		b.WriteByte('|')
		b.WriteString(s.Title)
		b.WriteByte('\n')
	}
	return b.String()
}

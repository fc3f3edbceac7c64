// Package display renders non-interactive terminal output.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"policyqa-cli/internal/session"
	"policyqa-cli/internal/stream"
)

// Out and ErrOut are where the helpers write. Tests swap them for buffers.
var (
	Out    io.Writer = color.Output
	ErrOut io.Writer = color.Error
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	subColor    = color.New(color.FgWhite, color.Bold)
	okColor     = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed)
	warnColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
	lawColor    = color.New(color.FgMagenta)
	policyColor = color.New(color.FgBlue)
)

func Header(text string) {
	fmt.Fprintf(Out, "\n%s\n", headerColor.Sprint(text))
	fmt.Fprintln(Out, strings.Repeat("─", min(runewidth.StringWidth(text)+4, 80)))
}

func SubHeader(text string) {
	fmt.Fprintln(Out, subColor.Sprint(text))
}

func Success(text string) {
	fmt.Fprintf(Out, "%s %s\n", okColor.Sprint("✓"), text)
}

func Error(text string) {
	fmt.Fprintf(ErrOut, "%s %s\n", errColor.Sprint("✗"), text)
}

func Warn(text string) {
	fmt.Fprintf(Out, "%s %s\n", warnColor.Sprint("!"), text)
}

// Info prints an aligned label/value pair.
func Info(label, value string) {
	fmt.Fprintf(Out, "  %s %s\n", dimColor.Sprint(runewidth.FillRight(label, 20)), value)
}

// Dim returns text in the faint style.
func Dim(text string) string {
	return dimColor.Sprint(text)
}

func SourceTypeLabel(t stream.SourceType) string {
	switch t {
	case stream.SourceLaw:
		return lawColor.Sprint("⚖ Law")
	case stream.SourcePolicy:
		return policyColor.Sprint("📘 Policy")
	case "":
		return dimColor.Sprint("Source")
	}
	return dimColor.Sprint(string(t))
}

// ScoreLabel formats a relevance score as a percentage.
func ScoreLabel(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("%.0f%%", *score*100)
}

func PhaseLabel(p session.Phase) string {
	switch p {
	case session.PhaseCommitted:
		return okColor.Sprint("✓ Answered")
	case session.PhaseFailed:
		return errColor.Sprint("✗ Failed")
	case session.PhaseCancelled:
		return dimColor.Sprint("⊘ Cancelled")
	case session.PhaseStreaming:
		return warnColor.Sprint("⟳ Answering")
	}
	return p.String()
}

// Truncate shortens s to width terminal cells, counting wide characters
// as two cells.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// Conversations prints the conversation list as an aligned table.
func Conversations(list []session.Conversation, current string) {
	if len(list) == 0 {
		fmt.Fprintln(Out, "  No conversations yet.")
		return
	}
	for _, c := range list {
		marker := " "
		if c.ID == current {
			marker = okColor.Sprint("*")
		}
		title := runewidth.FillRight(Truncate(c.DisplayTitle(), 40), 40)
		fmt.Fprintf(Out, "%s %s  %s  %s\n", marker, title, dimColor.Sprint(FormatTime(c.CreatedAt)), c.ID)
	}
}

// Sources prints a citation list.
func Sources(sources []stream.Source) {
	FprintSources(Out, sources)
}

func FprintSources(w io.Writer, sources []stream.Source) {
	for _, s := range sources {
		line := fmt.Sprintf("     • %s %s", SourceTypeLabel(s.Type), s.Title)
		if score := ScoreLabel(s.Score); score != "" {
			line += " " + dimColor.Sprintf("(%s)", score)
		}
		fmt.Fprintln(w, line)
		if s.Snippet != nil && *s.Snippet != "" {
			fmt.Fprintf(w, "       %s\n", dimColor.Sprint(Truncate(*s.Snippet, 72)))
		}
	}
}

func Suggestions(items []string) {
	FprintSuggestions(Out, items)
}

func FprintSuggestions(w io.Writer, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  💡 Follow-up suggestions:")
	for i, item := range items {
		fmt.Fprintf(w, "     %d. %s\n", i+1, item)
	}
}

// Transcript prints committed messages of a conversation.
func Transcript(msgs []session.Message) {
	for _, m := range msgs {
		fmt.Fprintln(Out)
		switch m.Role {
		case session.RoleUser:
			fmt.Fprintf(Out, "%s %s\n", headerColor.Sprint("❯"), m.Content)
		default:
			fmt.Fprintln(Out, m.Content)
			if len(m.Sources) > 0 {
				fmt.Fprintln(Out)
				fmt.Fprintln(Out, "  📎 Sources:")
				Sources(m.Sources)
			}
		}
	}
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"policyqa-cli/internal/session"
	"policyqa-cli/internal/stream"
)

// ─── Welcome Screen ─────────────────────────────────────────────────────────

const logo = `
 ┌─┐┌─┐┬  ┬┌─┐┬ ┬  ┌─┐┌─┐
 ├─┘│ ││  ││  └┬┘  │─┼┐├─┤
 ┴  └─┘┴─┘┴└─┘ ┴   └─┘└┴ ┴`

func renderWelcome(version, server, username string) string {
	titleLine := logoTitleStyle.Render("Policy QA") + " " + versionStyle.Render("v"+version)

	var infoLine string
	if server == "" {
		infoLine = welcomeHintStyle.Render("Run: policyqa set server <url>")
	} else {
		info := truncate(server, 40)
		if username != "" {
			info += " · " + truncate(username, 24)
		}
		infoLine = welcomeInfoLabel.Render(info)
	}
	hint := welcomeHintStyle.Render("Ask about leave, overtime, wages or company policy. /help for commands.")

	return fmt.Sprintf("%s\n\n%s\n%s\n%s\n", logoStyle.Render(logo), titleLine, infoLine, hint)
}

// ─── Markdown ───────────────────────────────────────────────────────────────

// newRenderer builds the glamour renderer for committed answers. A nil
// renderer makes renderMarkdown fall back to indented plain text.
func newRenderer(style string, width int) *glamour.TermRenderer {
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil
	}
	return r
}

func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r != nil {
		if out, err := r.Render(content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return strings.TrimRight(indentText(content, "  "), "\n")
}

// ─── Answers ────────────────────────────────────────────────────────────────

func renderUserLine(question string) string {
	return userPromptStyle.Render("❯ " + question)
}

func renderSourceTag(t stream.SourceType) string {
	switch t {
	case stream.SourceLaw:
		return lawTagStyle.Render("⚖ law")
	case stream.SourcePolicy:
		return policyTagStyle.Render("📘 policy")
	case "":
		return dimStyle.Render("source")
	}
	return dimStyle.Render(string(t))
}

func renderSources(sources []stream.Source, width int) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(sourceHeaderStyle.Render("  📎 Sources"))
	for _, s := range sources {
		b.WriteString("\n     • ")
		b.WriteString(renderSourceTag(s.Type))
		b.WriteString(" ")
		b.WriteString(truncate(s.Title, max(width-24, 20)))
		if s.Score != nil {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" (%.0f%%)", *s.Score*100)))
		}
		if s.Snippet != nil && *s.Snippet != "" {
			b.WriteString("\n       ")
			b.WriteString(dimStyle.Render(truncate(*s.Snippet, max(width-10, 20))))
		}
	}
	return b.String()
}

func renderSuggestions(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(followUpStyle.Render("  💡 Follow-up suggestions:"))
	for i, item := range items {
		b.WriteString("\n")
		b.WriteString(followUpStyle.Render(fmt.Sprintf("     %d. %s", i+1, item)))
	}
	return b.String()
}

// renderCommitted prints a confirmed exchange above the prompt.
func renderCommitted(r *glamour.TermRenderer, user, answer session.Message, width int) string {
	parts := []string{
		"",
		renderUserLine(user.Content),
		"",
		renderMarkdown(r, answer.Content),
	}
	if s := renderSources(answer.Sources, width); s != "" {
		parts = append(parts, "", s)
	}
	if s := renderSuggestions(answer.Suggestions); s != "" {
		parts = append(parts, "", s)
	}
	parts = append(parts, "")
	return strings.Join(parts, "\n")
}

// renderTranscript prints a conversation loaded from the server.
func renderTranscript(r *glamour.TermRenderer, msgs []session.Message, width int) string {
	var parts []string
	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleUser:
			parts = append(parts, "", renderUserLine(msg.Content))
		default:
			parts = append(parts, "", renderMarkdown(r, msg.Content))
			if s := renderSources(msg.Sources, width); s != "" {
				parts = append(parts, "", s)
			}
		}
	}
	parts = append(parts, "")
	return strings.Join(parts, "\n")
}

func renderConversations(list []session.Conversation, current string) string {
	if len(list) == 0 {
		return warnMsgStyle.Render("  ! No conversations yet.")
	}
	lines := []string{"", dimStyle.Render(fmt.Sprintf("  Conversations (%d):", len(list))), ""}
	for _, c := range list {
		marker := "  "
		if c.ID == current {
			marker = successMsgStyle.Render("● ")
		}
		title := runewidth.FillRight(truncate(c.DisplayTitle(), 40), 40)
		created := ""
		if !c.CreatedAt.IsZero() {
			created = c.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		lines = append(lines, fmt.Sprintf("  %s%s  %s", marker, title, dimStyle.Render(created+"  "+c.ID)))
	}
	lines = append(lines, "", dimStyle.Render("  Tip: /open <id> to continue · /new to start over"), "")
	return strings.Join(lines, "\n")
}

// ─── Live answer ────────────────────────────────────────────────────────────

const liveMaxLines = 16

// renderLive draws the in-flight exchange. It lives in View so that a
// failed or cancelled send disappears without leaving output behind.
func renderLive(snap session.Snapshot, width int) string {
	var parts []string
	parts = append(parts, renderUserLine(snap.Question))
	if s := renderSources(snap.Sources, width); s != "" {
		parts = append(parts, s)
	}
	if snap.Content != "" {
		wrapped := lipgloss.NewStyle().Width(max(width-4, 20)).Render(snap.Content)
		lines := strings.Split(wrapped, "\n")
		if len(lines) > liveMaxLines {
			lines = append([]string{dimStyle.Render("  …")}, lines[len(lines)-liveMaxLines:]...)
		}
		parts = append(parts, strings.TrimRight(indentText(strings.Join(lines, "\n"), "  "), "\n"))
	}
	return strings.Join(parts, "\n")
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// truncate shortens s to width terminal cells; CJK characters count as two.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

func indentText(text, prefix string) string {
	lines := strings.Split(text, "\n")
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

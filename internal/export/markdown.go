package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gravchat/internal/chat"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session chat.Session, w io.Writer) error {
	doc := newDocument(session)

	title := doc.Title
	if title == "" {
		title = doc.ID
	}
	if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", doc.ID)
	if doc.Model != "" {
		_, _ = fmt.Fprintf(w, "**Model:** %s  \n", doc.Model)
	}
	if !doc.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", doc.CreatedAt.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(doc.Messages))
	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range doc.Messages {
		timestamp := ""
		if !msg.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp.UTC().Format(time.RFC3339))
		}
		marker := ""
		if msg.Error {
			marker = " ⚠"
		}
		_, _ = fmt.Fprintf(w, "**%s:**%s%s\n\n%s\n\n", msg.Role, timestamp, marker, escapeMarkdown(msg.Content))
		if n := len(msg.Images); n > 0 {
			_, _ = fmt.Fprintf(w, "_%d image(s) attached_\n\n", n)
		}

		if i < len(doc.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}
	return nil
}

// escapeMarkdown escapes bold markers outside fenced code blocks.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	inCodeBlock := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "```"):
			inCodeBlock = !inCodeBlock
		case !inCodeBlock:
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}

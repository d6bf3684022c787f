// Package render formats sessions and messages for the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"gravchat/internal/chat"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/mattn/go-runewidth"
)

const (
	defaultWidth = 80
	titleWidth   = 40
)

// RenderMarkdown 使用 Glamour 渲染 markdown 文本；codeTheme 为 Glamour 内置样式名时使用该样式
// RenderMarkdown renders markdown with Glamour. A codeTheme naming a
// built-in Glamour style selects it; anything else falls back to the
// terminal's auto style. Render failures return the input unchanged.
func RenderMarkdown(content string, width int, codeTheme string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}

	style := glamour.WithAutoStyle()
	if _, ok := styles.DefaultStyles[codeTheme]; ok {
		style = glamour.WithStandardStyle(codeTheme)
	}
	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.Trim(rendered, "\n")
}

// Options control message rendering.
type Options struct {
	Width     int
	CodeTheme string
	// Markdown renders assistant replies through Glamour.
	Markdown bool
}

// RenderMessage 渲染单条消息：角色标签、正文、附件数量；错误消息使用错误样式
// RenderMessage renders one message with its role label. Error-flagged
// messages use the error style and are never markdown-rendered.
func RenderMessage(msg chat.Message, theme Theme, opts Options) string {
	var b strings.Builder
	switch msg.Role {
	case chat.RoleUser:
		b.WriteString(theme.UserStyle.Render("you"))
	case chat.RoleAssistant:
		b.WriteString(theme.AssistantStyle.Render("assistant"))
	default:
		b.WriteString(theme.MutedStyle.Render(msg.Role))
	}
	if !msg.Timestamp.IsZero() {
		b.WriteString(" ")
		b.WriteString(theme.MutedStyle.Render(msg.Timestamp.Local().Format("15:04")))
	}
	b.WriteString("\n")

	body := msg.Content
	switch {
	case msg.Error:
		body = theme.ErrorStyle.Render(strings.TrimSpace(body))
	case opts.Markdown && msg.Role == chat.RoleAssistant:
		body = RenderMarkdown(body, opts.Width, opts.CodeTheme)
	}
	b.WriteString(body)

	if n := len(msg.Images); n > 0 {
		b.WriteString("\n")
		b.WriteString(theme.MutedStyle.Render(fmt.Sprintf("[%d image(s) attached]", n)))
	}
	return b.String()
}

// RenderTranscript renders every message of a session separated by blank lines.
func RenderTranscript(s chat.Session, theme Theme, opts Options) string {
	parts := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		parts = append(parts, RenderMessage(m, theme, opts))
	}
	return strings.Join(parts, "\n\n")
}

// SessionLine is one row of a session listing.
func SessionLine(s chat.Session, active bool, theme Theme, untitled string) string {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = untitled
	}
	title = runewidth.Truncate(title, titleWidth, "…")
	id := s.ID
	if active {
		id = theme.ActiveStyle.Render(id)
	}
	meta := fmt.Sprintf("%d msgs · %s", len(s.Messages), s.CreatedAt.Local().Format(time.DateTime))
	if s.ProviderModelID != "" {
		meta += " · " + s.ProviderModelID
	}
	return fmt.Sprintf("%s  %s  %s", id, title, theme.MutedStyle.Render(meta))
}

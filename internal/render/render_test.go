package render

import (
	"strings"
	"testing"
	"time"

	"gravchat/internal/chat"
)

func TestRenderMarkdown_Basic(t *testing.T) {
	input := "# Hello\n\nThis is **bold** text."
	result := RenderMarkdown(input, 80, "")
	if result == "" {
		t.Fatal("RenderMarkdown returned empty")
	}
	if !strings.Contains(result, "Hello") {
		t.Fatalf("result should contain 'Hello': %q", result)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	if RenderMarkdown("", 80, "dracula") != "" {
		t.Fatal("empty input should return empty")
	}
	if RenderMarkdown("  ", 80, "dracula") != "" {
		t.Fatal("whitespace input should return empty")
	}
}

func TestRenderMarkdown_CodeThemes(t *testing.T) {
	input := "```go\nfunc main() {}\n```"
	for _, theme := range []string{"dracula", "notty", "github-dark", ""} {
		result := RenderMarkdown(input, 80, theme)
		if !strings.Contains(result, "func") {
			t.Fatalf("theme %q: code block should contain 'func': %q", theme, result)
		}
	}
}

func TestRenderMessage_Error(t *testing.T) {
	msg := chat.Message{Role: chat.RoleAssistant, Content: "partial\n\n**Error: boom**", Error: true}
	out := RenderMessage(msg, PlainTheme(), Options{Markdown: true})
	if !strings.HasPrefix(out, "assistant\n") {
		t.Fatalf("missing role label: %q", out)
	}
	if !strings.Contains(out, "**Error: boom**") {
		t.Fatalf("error content should be shown verbatim: %q", out)
	}
}

func TestRenderMessage_Images(t *testing.T) {
	msg := chat.Message{Role: chat.RoleUser, Content: "look", Images: []string{"a", "b"}}
	out := RenderMessage(msg, PlainTheme(), Options{})
	if !strings.Contains(out, "[2 image(s) attached]") {
		t.Fatalf("expected attachment count: %q", out)
	}
}

func TestRenderTranscript(t *testing.T) {
	s := chat.Session{Messages: []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}}
	out := RenderTranscript(s, PlainTheme(), Options{})
	if out != "you\nhi\n\nassistant\nhello" {
		t.Fatalf("unexpected transcript: %q", out)
	}
}

func TestSessionLine(t *testing.T) {
	s := chat.Session{
		ID:              "abc",
		CreatedAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		ProviderModelID: "gpt-4o",
		Messages:        []chat.Message{{Role: chat.RoleUser, Content: "x"}},
	}
	line := SessionLine(s, false, PlainTheme(), "New Chat")
	if !strings.Contains(line, "abc  New Chat") || !strings.Contains(line, "1 msgs") || !strings.Contains(line, "gpt-4o") {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestModelDecoration(t *testing.T) {
	tests := []struct {
		id   string
		icon string
	}{
		{"claude-3-5-sonnet", "◆"},
		{"gemini-2.0-flash", "✦"},
		{"gpt-4o", "●"},
		{"o3-mini", "●"},
		{"flux-image-16:9", "▣"},
		{"llama3", "○"},
	}
	for _, tt := range tests {
		if got := ModelDecoration(tt.id).Icon; got != tt.icon {
			t.Errorf("ModelDecoration(%q).Icon=%q, want %q", tt.id, got, tt.icon)
		}
	}
}

func TestModelLine(t *testing.T) {
	m := chat.ModelDescriptor{ID: "gpt-4o", DisplayName: "GPT-4o"}
	line := ModelLine(m, ModelDecoration(m.ID), true, PlainTheme())
	if line != "* ● gpt-4o  GPT-4o" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestSessionLine_TruncatesWideTitles(t *testing.T) {
	s := chat.Session{ID: "x", Title: strings.Repeat("汉", 30)}
	line := SessionLine(s, false, PlainTheme(), "")
	want := strings.Repeat("汉", 19) + "…"
	if !strings.Contains(line, "x  "+want+"  ") {
		t.Fatalf("expected title truncated to 40 cells, got %q", line)
	}
}

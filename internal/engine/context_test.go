package engine

import (
	"testing"

	"gravchat/internal/chat"

	"github.com/stretchr/testify/assert"
)

func TestSelectContext(t *testing.T) {
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "one"},
		{Role: chat.RoleAssistant, Content: "boom", Error: true},
		{Role: chat.RoleUser, Content: "two"},
		{Role: chat.RoleAssistant, Content: "reply"},
		{Role: chat.RoleUser, Content: "three"},
	}

	full := selectContext(history, "gpt-4o", true)
	assert.Equal(t, []string{"one", "two", "reply", "three"}, contents(full))

	assert.Equal(t, []string{"three"}, contents(selectContext(history, "gpt-4o", false)))
	assert.Equal(t, []string{"three"}, contents(selectContext(history, "dall-e-1024x1024", true)))
	assert.Equal(t, []string{"three"}, contents(selectContext(history, "gemini-3-pro-image", true)))
	assert.Equal(t, []string{"one", "two", "reply", "three"}, contents(selectContext(history, "mixtral-8x7b-instruct", true)))
}

func TestSelectContextSkipsErrorUserMessages(t *testing.T) {
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "good"},
		{Role: chat.RoleUser, Content: "bad", Error: true},
	}
	assert.Equal(t, []string{"good"}, contents(selectContext(history, "m", false)))
	assert.Empty(t, selectContext(nil, "m", false))
}

func contents(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

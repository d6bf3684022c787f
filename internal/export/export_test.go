package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"gravchat/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testSession() chat.Session {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return chat.Session{
		ID:              "1740821400000",
		Title:           "Hello",
		ProviderModelID: "gpt-4o",
		CreatedAt:       at,
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "Hello **there**", Images: []string{"data:image/png;base64,AA"}, Timestamp: at},
			{Role: chat.RoleAssistant, Content: "Hi\n```\na**b\n```", Timestamp: at.Add(time.Second)},
			{Role: chat.RoleAssistant, Content: "\n\n**Error: boom**", Error: true, Timestamp: at.Add(2 * time.Second)},
			{Role: chat.RoleAssistant, Content: "partial", Streaming: true},
		},
	}
}

func TestNewExporter(t *testing.T) {
	for format, ext := range map[string]string{"json": "json", "YAML": "yaml", "yml": "yaml", "md": "md", "markdown": "md"} {
		e, err := NewExporter(format)
		require.NoError(t, err, format)
		assert.Equal(t, ext, e.Extension(), format)
	}
	_, err := NewExporter("csv")
	assert.Error(t, err)
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONExporter{}).Export(testSession(), &buf))

	var doc document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "1740821400000", doc.ID)
	assert.Equal(t, "gpt-4o", doc.Model)
	require.Len(t, doc.Messages, 3)
	assert.True(t, doc.Messages[2].Error)
	assert.Equal(t, []string{"data:image/png;base64,AA"}, doc.Messages[0].Images)
}

func TestYAMLExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLExporter{}).Export(testSession(), &buf))

	var doc document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "Hello", doc.Title)
	require.Len(t, doc.Messages, 3)
	assert.Contains(t, buf.String(), "created_at:")
}

func TestMarkdownExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&MarkdownExporter{}).Export(testSession(), &buf))
	out := buf.String()

	for _, want := range []string{
		"# Hello",
		"**Model:** gpt-4o",
		"**Messages:** 3",
		"**user:** (2025-03-01T09:30:00Z)",
		"Hello \\*\\*there\\*\\*",
		"a**b",
		"_1 image(s) attached_",
		"**assistant:** (2025-03-01T09:30:02Z) ⚠",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "partial")
}

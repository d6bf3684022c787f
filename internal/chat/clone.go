package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CloneSession returns a deep, reference-free copy of s produced by a
// serialization round trip.
func CloneSession(s Session) (Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Session{}, fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		return Session{}, fmt.Errorf("unmarshal session %s: %w", s.ID, err)
	}
	return out, nil
}

// TextBlock is text extracted from an attached document.
type TextBlock struct {
	Name string
	Text string
}

// AppendBlocks appends extracted document text to a message body, one
// fenced section per block, in the given order. Empty blocks are skipped.
func AppendBlocks(content string, blocks []TextBlock) string {
	var b strings.Builder
	b.WriteString(content)
	for _, block := range blocks {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		name := strings.TrimSpace(block.Name)
		if name == "" {
			name = "attachment"
		}
		fmt.Fprintf(&b, "[%s]\n```\n%s\n```", name, text)
	}
	return b.String()
}

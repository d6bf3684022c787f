// Package export renders sessions in portable formats.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gravchat/internal/chat"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(session chat.Session, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: md, yaml, json)", format)
	}
}

// document is the serialized shape shared by the json and yaml exporters.
type document struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Model     string     `json:"model,omitempty" yaml:"model,omitempty"`
	CreatedAt time.Time  `json:"createdAt" yaml:"created_at"`
	Messages  []docEntry `json:"messages" yaml:"messages"`
}

type docEntry struct {
	Role      string    `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Images    []string  `json:"images,omitempty" yaml:"images,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Error     bool      `json:"error,omitempty" yaml:"error,omitempty"`
}

// newDocument drops messages that are still streaming.
func newDocument(s chat.Session) document {
	doc := document{
		ID:        s.ID,
		Title:     s.Title,
		Model:     s.ProviderModelID,
		CreatedAt: s.CreatedAt,
		Messages:  make([]docEntry, 0, len(s.Messages)),
	}
	for _, m := range s.Messages {
		if m.Streaming {
			continue
		}
		doc.Messages = append(doc.Messages, docEntry{
			Role:      m.Role,
			Content:   m.Content,
			Images:    m.Images,
			Timestamp: m.Timestamp,
			Error:     m.Error,
		})
	}
	return doc
}

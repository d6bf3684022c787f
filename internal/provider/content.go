package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

func parseDeltaContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		OutputText string `json:"output_text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil && len(parts) > 0 {
		var builder strings.Builder
		for _, part := range parts {
			text := part.Text
			if text == "" {
				text = part.OutputText
			}
			if text == "" || !isTextKind(part.Type) {
				continue
			}
			builder.WriteString(text)
		}
		return builder.String(), nil
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("parse stream delta content: %w", err)
	}
	return extractText(generic), nil
}

func parseContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	// Some providers return content as typed parts instead of a plain string.
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil && len(parts) > 0 {
		var builder strings.Builder
		for _, part := range parts {
			if part.Text == "" || !isTextKind(part.Type) {
				continue
			}
			builder.WriteString(part.Text)
		}
		if builder.Len() > 0 {
			return builder.String(), nil
		}
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("parse response content: %w", err)
	}
	if extracted := extractText(generic); extracted != "" {
		return extracted, nil
	}
	compact, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("compact response content: %w", err)
	}
	return string(compact), nil
}

func isTextKind(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	return kind == "" || kind == "text" || kind == "output_text"
}

func extractText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		var builder strings.Builder
		for _, item := range val {
			builder.WriteString(extractText(item))
		}
		return builder.String()
	case map[string]any:
		if kind, ok := val["type"].(string); ok && !isTextKind(kind) {
			if nested, ok := val["content"]; ok {
				return extractText(nested)
			}
			return ""
		}
		for _, key := range []string{"text", "output_text"} {
			if text, ok := val[key].(string); ok && text != "" {
				return text
			}
		}
		for _, key := range []string{"content", "value"} {
			if nested, ok := val[key]; ok {
				if text := extractText(nested); text != "" {
					return text
				}
			}
		}
	}
	return ""
}

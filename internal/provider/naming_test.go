package provider

import "testing"

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"claude-3-5-sonnet-20240620":        "Claude 3.5 Sonnet",
		"claude-sonnet-4-20250514":          "Claude 4 Sonnet",
		"claude-opus-4-5-20251101-thinking": "Claude 4.5 Opus (Thinking)",
		"gemini-2.5-flash":                  "Gemini 2.5 Flash",
		"gemini-3-pro-image-1024x1024":      "Gemini 3 Pro (Image 1024x1024)",
		"gpt-4o-2024-08-06":                 "GPT-4O",
		"deepseek-chat":                     "Deepseek Chat",
		"":                                  "Unknown Model",
	}
	for id, want := range tests {
		if got := DisplayName(id); got != want {
			t.Errorf("DisplayName(%q)=%q, want %q", id, got, want)
		}
	}
}

func TestIsImageModel(t *testing.T) {
	for id, want := range map[string]bool{
		"gemini-3-pro-image":         true,
		"flux-1024x768":              true,
		"gpt-4o":                     false,
		"claude-3-5-sonnet-20240620": false,
		"gemini-3-pro-image-16x9":    true,
		"mixtral-8x7b-instruct":      false,
		"mixtral-8x22b":              false,
		"qwen-2x7b-moe":              false,
	} {
		if got := IsImageModel(id); got != want {
			t.Errorf("IsImageModel(%q)=%v, want %v", id, got, want)
		}
	}
}

package contextmgr

import (
	"testing"

	"gravchat/internal/chat"
)

func TestTokenizer_Heuristic(t *testing.T) {
	// 即使 tiktoken 不可用，启发式也应该可用
	// Heuristic should always work even without tiktoken
	tok := HeuristicTokenizer()

	if count := tok.CountText("Hello world"); count <= 0 {
		t.Fatalf("heuristic CountText should return > 0, got %d", count)
	}
	if cjkCount := tok.CountText("你好世界"); cjkCount <= 0 {
		t.Fatalf("heuristic CountText for CJK should return > 0, got %d", cjkCount)
	}
	if tok.IsPrecise() {
		t.Fatal("fallback tokenizer should not be precise")
	}
}

func TestTokenizer_CountMessagesWithImages(t *testing.T) {
	tok := HeuristicTokenizer()
	plain := chat.Message{Role: "user", Content: "describe"}
	withImages := plain
	withImages.Images = []string{"data:a", "data:b"}

	if got, want := tok.CountMessage(withImages)-tok.CountMessage(plain), 2*imageTokens; got != want {
		t.Fatalf("image overhead=%d, want %d", got, want)
	}
	if tok.Count([]chat.Message{plain, withImages}) != tok.CountMessage(plain)+tok.CountMessage(withImages) {
		t.Fatal("Count should sum CountMessage")
	}
}

func TestTokenizer_EmptyText(t *testing.T) {
	if HeuristicTokenizer().CountText("") != 0 {
		t.Fatal("empty text should return 0")
	}
}

func TestModelToEncoding(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"gpt-4", "cl100k_base"},
		{"gpt-3.5-turbo", "cl100k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"o1-preview", "o200k_base"},
		{"o3-mini", "o200k_base"},
		{"claude-3-opus", "cl100k_base"},
		{"", "cl100k_base"},
		{"unknown-model", "cl100k_base"},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.expected {
			t.Errorf("modelToEncoding(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}

func TestHeuristicTokenCount(t *testing.T) {
	tests := []struct {
		input string
		minOK bool
	}{
		{"Hello world, this is a test.", true},
		{"你好世界，这是一个测试。", true},
		{"Mixed 混合 text 文本", true},
		{"", false},
	}
	for _, tt := range tests {
		got := heuristicTokenCount(tt.input)
		if tt.minOK && got <= 0 {
			t.Errorf("heuristicTokenCount(%q) = %d, want > 0", tt.input, got)
		}
		if !tt.minOK && got != 0 {
			t.Errorf("heuristicTokenCount(%q) = %d, want 0", tt.input, got)
		}
	}
}

type fixedCounter int

func (c fixedCounter) CountMessage(chat.Message) int { return int(c) }

func TestTrimToBudget(t *testing.T) {
	msgs := []chat.Message{{Content: "1"}, {Content: "2"}, {Content: "3"}, {Content: "4"}}

	kept, total := TrimToBudget(msgs, fixedCounter(10), 0)
	if len(kept) != 4 || total != 40 {
		t.Fatalf("unlimited: kept=%d total=%d", len(kept), total)
	}
	kept, total = TrimToBudget(msgs, fixedCounter(10), 25)
	if len(kept) != 2 || kept[0].Content != "3" || total != 20 {
		t.Fatalf("budget 25: kept=%+v total=%d", kept, total)
	}
	kept, _ = TrimToBudget(msgs, fixedCounter(10), 5)
	if len(kept) != 1 || kept[0].Content != "4" {
		t.Fatalf("last message must survive: kept=%+v", kept)
	}
	kept, total = TrimToBudget(nil, fixedCounter(10), 5)
	if len(kept) != 0 || total != 0 {
		t.Fatalf("empty input: kept=%+v total=%d", kept, total)
	}
}

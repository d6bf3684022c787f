package i18n

import "testing"

func TestNew_English(t *testing.T) {
	i := New("en")
	if i.Locale() != "en" {
		t.Fatalf("Locale()=%q, want en", i.Locale())
	}
	got := i.T("chat.title.new")
	if got != "New Chat" {
		t.Fatalf("T(chat.title.new)=%q, want New Chat", got)
	}
}

func TestNew_Chinese(t *testing.T) {
	i := New("zh-CN")
	if i.Locale() != "zh-CN" {
		t.Fatalf("Locale()=%q, want zh-CN", i.Locale())
	}
	got := i.T("chat.title.new")
	if got != "新对话" {
		t.Fatalf("T(chat.title.new)=%q, want 新对话", got)
	}
}

func TestNew_ChineseFromLang(t *testing.T) {
	i := New("zh_CN.UTF-8")
	if i.Locale() != "zh-CN" {
		t.Fatalf("Locale()=%q, want zh-CN", i.Locale())
	}
	got := i.T("chat.title.image")
	if got != "图片分析" {
		t.Fatalf("T(chat.title.image)=%q, want 图片分析", got)
	}
}

func TestT_WithArgs(t *testing.T) {
	i := New("en")
	got := i.T("error.provider", "timeout")
	if got != "Provider error: timeout" {
		t.Fatalf("T with args=%q, want Provider error: timeout", got)
	}
}

func TestT_MissingKey(t *testing.T) {
	i := New("en")
	got := i.T("nonexistent.key")
	if got != "nonexistent.key" {
		t.Fatalf("T missing key=%q, want key itself", got)
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en_US.UTF-8", "en"},
		{"zh_CN.UTF-8", "zh-CN"},
		{"zh_TW", "zh-CN"},
		{"en", "en"},
		{"", "en"},
		{"fr_FR", "fr-FR"},
		{"C", "en"},
		{"zh_CN.UTF-8@pinyin", "zh-CN"},
	}
	for _, tt := range tests {
		got := normalizeLocale(tt.input)
		if got != tt.expected {
			t.Errorf("normalizeLocale(%q)=%q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNewIsIndependentPerCall(t *testing.T) {
	en := New("en")
	zh := New("zh-CN")
	if en.T("chat.title.new") == zh.T("chat.title.new") {
		t.Fatal("tables should not share state")
	}
	if New("fr_FR").T("chat.title.new") != "New Chat" {
		t.Fatal("unknown locale should fall back to English")
	}
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	for k := range EnMessages {
		if _, ok := ZhCNMessages[k]; !ok {
			t.Errorf("zh-CN catalog missing %q", k)
		}
	}
	for k := range ZhCNMessages {
		if _, ok := EnMessages[k]; !ok {
			t.Errorf("en catalog missing %q", k)
		}
	}
}

func TestDetectLocale_Env(t *testing.T) {
	t.Setenv("GRAVCHAT_LANG", "zh_CN.UTF-8")
	if got := DetectLocale(); got != "zh-CN" {
		t.Fatalf("DetectLocale()=%q, want zh-CN", got)
	}
	if got := New("").T("chat.error_annotation", "boom"); got != "\n\n**错误: boom**" {
		t.Fatalf("annotation=%q", got)
	}
}

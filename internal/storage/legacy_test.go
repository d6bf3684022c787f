package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gravchat/internal/chat"
)

func writeLegacyFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestImportLegacy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeLegacyFile(t, dir, LegacyHistoryFile, `[
		{"id":"1700000000000","title":"old chat","modelId":"gpt-4o","createdAt":"2023-11-14T22:13:20Z",
		 "messages":[{"role":"user","content":"hi","timestamp":"2023-11-14T22:13:20Z"},
		             {"role":"assistant","content":"partial","timestamp":"2023-11-14T22:13:21Z","streaming":true}]},
		{"id":"1700000100000","title":"no date","messages":[]}
	]`)
	writeLegacyFile(t, dir, LegacySettingsFile, `{
		"models":[{"id":"gpt-4o","name":"GPT-4o","desc":"fast","icon":{"x":1}},{"id":"","name":"bad"}],
		"apiConfig":{"baseUrl":"https://api.example.com/v1/chat/completions","apiKey":"sk-legacy"},
		"dataRetention":30
	}`)
	writeLegacyFile(t, dir, LegacySelectedModelFile, `"gpt-4o"`)

	report, err := ImportLegacy(ctx, store, dir)
	if err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}
	if report.Sessions != 2 || !report.Group || report.Settings != 3 {
		t.Fatalf("report=%+v", report)
	}

	sess, err := store.GetSession(ctx, "1700000000000")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Messages[1].Streaming {
		t.Fatalf("imported message still marked streaming")
	}
	undated, _ := store.GetSession(ctx, "1700000100000")
	if undated.CreatedAt.UnixMilli() != 1700000100000 {
		t.Fatalf("CreatedAt=%v, want derived from id", undated.CreatedAt)
	}

	group, err := store.GetGroup(ctx, LegacyGroupID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if group.Endpoint.BaseURL != "https://api.example.com" || group.Endpoint.Path != "/v1/chat/completions" {
		t.Fatalf("endpoint=%+v", group.Endpoint)
	}
	if !group.IsUserDefined || len(group.Models) != 1 || group.Models[0].DisplayName != "GPT-4o" {
		t.Fatalf("group=%+v", group)
	}

	raw, _ := store.GetSetting(ctx, chat.SettingActiveModelID)
	var model string
	_ = json.Unmarshal(raw, &model)
	if model != "gpt-4o" {
		t.Fatalf("active model=%q", model)
	}

	// 二次导入跳过已有会话 / re-import skips existing sessions
	again, err := ImportLegacy(ctx, store, dir)
	if err != nil {
		t.Fatalf("second ImportLegacy: %v", err)
	}
	if again.Sessions != 0 || again.Skipped != 2 {
		t.Fatalf("second report=%+v", again)
	}
}

func TestImportLegacySkipsBadRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeLegacyFile(t, dir, LegacyHistoryFile, `[
		{"id":"1700000000000","title":"good","messages":[]},
		{"id":42,"title":"numeric id"},
		"not a session",
		{"id":"1700000200000","title":"also good","messages":[{"role":"user","content":"x"}]}
	]`)

	report, err := ImportLegacy(ctx, store, dir)
	if err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}
	if report.Sessions != 2 || report.Failed != 2 || report.Skipped != 0 {
		t.Fatalf("report=%+v", report)
	}
	for _, id := range []string{"1700000000000", "1700000200000"} {
		if _, err := store.GetSession(ctx, id); err != nil {
			t.Fatalf("GetSession(%s): %v", id, err)
		}
	}
}

func TestImportLegacyMissingDir(t *testing.T) {
	store := newTestStore(t)
	report, err := ImportLegacy(context.Background(), store, filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}
	if report != (ImportReport{}) {
		t.Fatalf("report=%+v, want zero", report)
	}
}

func TestSplitCompletionURL(t *testing.T) {
	cases := []struct{ in, base, path string }{
		{"https://a.com/v1/chat/completions", "https://a.com", "/v1/chat/completions"},
		{"https://a.com/api/chat/completions/", "https://a.com/api", "/chat/completions"},
		{"https://a.com", "https://a.com", ""},
	}
	for _, tc := range cases {
		base, path := splitCompletionURL(tc.in)
		if base != tc.base || path != tc.path {
			t.Fatalf("splitCompletionURL(%q)=(%q,%q), want (%q,%q)", tc.in, base, path, tc.base, tc.path)
		}
	}
}

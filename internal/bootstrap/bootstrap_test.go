package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"gravchat/internal/chat"
	"gravchat/internal/config"

	"go.uber.org/zap"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data", "gravchat.db")
	cfg.Groups = []config.GroupConfig{{
		ID:      "local",
		Name:    "Local",
		Adapter: "openai",
		BaseURL: "http://127.0.0.1:1",
		Models:  []string{"llama3", "llava"},
	}}
	return cfg
}

func TestBuildSuccessWithTempDir(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	defer app.Close()

	if app.StoreErr != nil {
		t.Fatalf("unexpected store error: %v", app.StoreErr)
	}
	if app.Engine == nil || app.Groups == nil || app.Settings == nil {
		t.Fatal("expected engine, groups and settings to be wired")
	}
	g, ok := app.Groups.Group("local")
	if !ok {
		t.Fatal("expected built-in group to be loaded")
	}
	if len(g.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(g.Models))
	}
	if app.Tokens == nil || app.Tokens.IsPrecise() {
		t.Fatal("expected heuristic tokenizer by default")
	}
}

func TestBuildWithoutStorePathKeepsRunning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Path = ""
	app, err := Build(context.Background(), cfg, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	defer app.Close()

	if app.StoreErr == nil {
		t.Fatal("expected store error for empty path")
	}
	id := app.Engine.NewSession()
	if cur, ok := app.Engine.Current(); !ok || cur.ID != id {
		t.Fatal("expected in-memory session to be current")
	}
}

func TestBuildSeedsRetentionFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chat.RetentionDays = 30

	app, err := Build(context.Background(), cfg, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := app.Settings.RetentionDays(); got != 30 {
		t.Fatalf("expected retention 30, got %d", got)
	}
	if err := app.Settings.Set(chat.SettingRetentionDays, 14); err != nil {
		t.Fatalf("set retention: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A stored value wins over the config seed.
	app, err = Build(context.Background(), cfg, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("rebuild returned error: %v", err)
	}
	defer app.Close()
	if got := app.Settings.RetentionDays(); got != 14 {
		t.Fatalf("expected stored retention 14, got %d", got)
	}
}

func TestBuildPersistsSessionsAcrossRuns(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	id := app.Engine.NewSession()
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	app, err = Build(context.Background(), cfg, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("rebuild returned error: %v", err)
	}
	defer app.Close()
	if _, ok := app.Engine.Session(id); !ok {
		t.Fatalf("expected session %s to survive restart", id)
	}
}

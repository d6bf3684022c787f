// Package bootstrap wires the store, settings, provider groups and the
// session engine from a loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"gravchat/internal/chat"
	"gravchat/internal/config"
	"gravchat/internal/contextmgr"
	"gravchat/internal/debounce"
	"gravchat/internal/engine"
	"gravchat/internal/groups"
	"gravchat/internal/i18n"
	"gravchat/internal/logging"
	"gravchat/internal/provider"
	"gravchat/internal/settings"
	"gravchat/internal/storage"

	"go.uber.org/zap"
)

// App 与 UI 无关的构建结果，供命令行层使用
// App is the UI-agnostic build result used by the command layer.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Messages  *i18n.Messages
	Store     *storage.Store
	Scheduler *debounce.Scheduler
	Settings  *settings.Service
	Registry  *provider.Registry
	Groups    *groups.Manager
	Engine    *engine.Engine
	HTTP      *http.Client
	Tokens    *contextmgr.Tokenizer

	// StoreErr 记录存储初始化失败；引擎仍可在内存中运行
	// StoreErr records a failed store initialization. The engine still
	// runs in memory; persistence calls keep retrying initialization.
	StoreErr error
}

// Options adjust Build for callers that supply their own collaborators.
type Options struct {
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Build 按依赖顺序初始化；调用方负责 defer app.Close()
// Build initializes every component in dependency order. The caller must
// defer app.Close().
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		l, err := logging.New(cfg.LoggingOptions())
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		logger = l
	}
	app := &App{
		Config:    cfg,
		Logger:    logger,
		Messages:  i18n.New(cfg.Locale),
		Scheduler: debounce.New(),
		Registry:  provider.NewRegistry(logger),
		HTTP:      opts.HTTPClient,
	}
	if app.HTTP == nil {
		app.HTTP = newHTTPClient(cfg)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	app.Store = storage.New(cfg.Storage.Path, logger)
	if err := app.Store.Init(ctx); err != nil {
		app.StoreErr = err
		logger.Error("store unavailable, continuing in memory", zap.Error(err))
	}

	if app.StoreErr == nil && cfg.Storage.LegacyDir != "" {
		report, err := storage.ImportLegacy(ctx, app.Store, cfg.Storage.LegacyDir)
		if err != nil {
			logger.Warn("legacy import failed", zap.Error(err))
		} else if report.Sessions > 0 || report.Failed > 0 || report.Group || report.Settings > 0 {
			logger.Info("legacy data imported",
				zap.Int("sessions", report.Sessions),
				zap.Int("skipped", report.Skipped),
				zap.Int("failed", report.Failed),
				zap.Bool("group", report.Group),
				zap.Int("settings", report.Settings),
			)
		}
	}

	app.Settings = settings.New(app.Store, app.Scheduler, cfg.SettingsDelay(), logger)
	if err := app.Settings.Load(ctx); err != nil {
		logger.Warn("load settings failed", zap.Error(err))
	}
	var days int
	if !app.Settings.Get(chat.SettingRetentionDays, &days) && cfg.Chat.RetentionDays != settings.DefaultRetentionDays {
		if err := app.Settings.Set(chat.SettingRetentionDays, cfg.Chat.RetentionDays); err != nil {
			logger.Warn("seed retention setting failed", zap.Error(err))
		}
	}

	app.Groups = groups.NewManager(app.Store, app.Settings, groups.HTTPCatalog(app.HTTP), logger)
	if err := app.Groups.Load(ctx, cfg.BuiltinGroups()); err != nil {
		logger.Warn("load provider groups failed", zap.Error(err))
	}

	if cfg.Chat.PreciseTokens {
		app.Tokens = contextmgr.NewTokenizerForModel(app.Settings.ActiveModelID())
		if !app.Tokens.IsPrecise() {
			logger.Warn("tiktoken unavailable, using heuristic token counts")
		}
	} else {
		app.Tokens = contextmgr.HeuristicTokenizer()
	}

	app.Engine = engine.New(engine.Deps{
		Store:       app.Store,
		Models:      app.Groups,
		Adapters:    app.Registry,
		Preferences: app.Settings,
		Scheduler:   app.Scheduler,
		HTTPClient:  app.HTTP,
		Tokens:      app.Tokens,
		Messages:    app.Messages,
		Logger:      logger,
	}, engine.Config{
		EndpointPath:  cfg.Chat.EndpointPath,
		HistoryDelay:  cfg.HistoryDelay(),
		TitleMaxRunes: cfg.Chat.TitleMaxRunes,
		ContextBudget: cfg.Chat.ContextTokenBudget,
	})
	// Load failures are logged by the engine; it keeps running in memory.
	_ = app.Engine.Load(ctx)
	return app, nil
}

// newHTTPClient bounds the wait for response headers only; streamed
// bodies may take longer than the timeout.
func newHTTPClient(cfg config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.HTTPTimeout()
	return &http.Client{Transport: transport}
}

// Close flushes pending writes and releases the store.
func (a *App) Close() error {
	a.Engine.Close()
	a.Settings.Flush()
	a.Scheduler.Stop()
	err := a.Store.Close()
	_ = a.Logger.Sync()
	return err
}

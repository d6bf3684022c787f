package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gravchat/internal/chat"
	"gravchat/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

// Store 基于 SQLite (WAL 模式) 的版本化持久化句柄
// Store is the versioned persistence handle backed by SQLite in WAL mode.
// It is constructed once and passed to every component that persists data.
type Store struct {
	path       string
	logger     *zap.Logger
	migrations []Migration

	initGroup singleflight.Group
	mu        sync.RWMutex
	db        *sql.DB

	sessions *Collection[chat.Session]
	settings *Collection[chat.SettingEntry]
	groups   *Collection[chat.ProviderGroup]
}

// New 创建未打开的存储句柄，首次使用时由 Init 打开
// New returns an unopened handle; Init (or the first operation) opens it.
func New(dbPath string, logger *zap.Logger) *Store {
	s := &Store{
		path:       strings.TrimSpace(dbPath),
		logger:     logging.OrNop(logger).Named("store"),
		migrations: Migrations(),
	}
	s.sessions = &Collection[chat.Session]{
		store:    s,
		name:     CollectionSessions,
		table:    "chat_sessions",
		keyCol:   "id",
		indexCol: "created_at",
		stampCol: "updated_at",
		keyOf:    func(v chat.Session) string { return v.ID },
		indexOf:  func(v chat.Session) int64 { return v.CreatedAt.UnixMilli() },
	}
	s.settings = &Collection[chat.SettingEntry]{
		store:  s,
		name:   CollectionSettings,
		table:  "settings",
		keyCol: "key",
		keyOf:  func(v chat.SettingEntry) string { return v.Key },
	}
	s.groups = &Collection[chat.ProviderGroup]{
		store:  s,
		name:   CollectionGroups,
		table:  "provider_groups",
		keyCol: "id",
		keyOf:  func(v chat.ProviderGroup) string { return v.ID },
	}
	return s
}

// Init 打开数据库并执行迁移；并发调用共享同一次初始化，失败后可重试
// Init opens the database and migrates it to the current schema version.
// It is idempotent; concurrent callers wait for the one in-flight attempt.
// A failed attempt is not cached, so callers may retry.
func (s *Store) Init(ctx context.Context) error {
	if s.handle() != nil {
		return nil
	}
	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		if s.handle() != nil {
			return nil, nil
		}
		db, err := s.open(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	if s.path == "" {
		return nil, &StoreError{Op: "init", Err: fmt.Errorf("sqlite db path is empty")}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, &StoreError{Op: "init", Err: fmt.Errorf("create db directory: %w", err)}
	}

	// 连接级 PRAGMA 通过 DSN 设置，保证每个连接都生效
	// Connection-level PRAGMAs go through the DSN so every pooled connection gets them.
	dsn := "file:" + s.path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StoreError{Op: "init", Err: fmt.Errorf("open sqlite: %w", err)}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "init", Err: fmt.Errorf("ping sqlite: %w", err)}
	}
	if err := migrate(ctx, db, s.migrations, s.logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("store ready", zap.String("path", s.path))
	return db, nil
}

func (s *Store) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// ensureDB 确保数据库已初始化 / ensureDB waits for initialization.
func (s *Store) ensureDB(ctx context.Context) (*sql.DB, error) {
	if db := s.handle(); db != nil {
		return db, nil
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s.handle(), nil
}

// Version 返回当前 schema 版本 / Version returns the on-disk schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return 0, err
	}
	return schemaVersion(ctx, db)
}

// Close 关闭数据库连接 / Close the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Sessions returns the chat-session collection, indexed by creation time.
func (s *Store) Sessions() *Collection[chat.Session] { return s.sessions }

// Settings returns the scalar settings collection.
func (s *Store) Settings() *Collection[chat.SettingEntry] { return s.settings }

// Groups returns the provider-group collection.
func (s *Store) Groups() *Collection[chat.ProviderGroup] { return s.groups }

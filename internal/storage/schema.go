package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Collection names.
const (
	CollectionSessions = "chatSessions"
	CollectionSettings = "settings"
	CollectionGroups   = "providerGroups"
)

// VersionRange bounds the schema versions a migration may start from.
// Max of 0 means unbounded.
type VersionRange struct {
	Min int
	Max int
}

// Contains reports whether v lies inside the range.
func (r VersionRange) Contains(v int) bool {
	if v < r.Min {
		return false
	}
	return r.Max == 0 || v <= r.Max
}

// Migration 一次 schema 升级步骤
// Migration is one schema upgrade step. Apply runs inside the upgrade
// transaction and must not touch the *sql.DB directly.
type Migration struct {
	Version int
	Name    string
	From    VersionRange
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// CurrentVersion is the schema version this build writes.
const CurrentVersion = 3

// Migrations 返回按版本排序的迁移列表
// Migrations returns the built-in upgrade steps in version order.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create chat_sessions and settings",
			From:    VersionRange{Min: 0, Max: 0},
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				return execAll(ctx, tx,
					`CREATE TABLE IF NOT EXISTS chat_sessions (
						id         TEXT PRIMARY KEY,
						created_at INTEGER NOT NULL,
						data       TEXT NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_chat_sessions_created_at ON chat_sessions(created_at)`,
					`CREATE TABLE IF NOT EXISTS settings (
						key  TEXT PRIMARY KEY,
						data TEXT NOT NULL
					)`,
				)
			},
		},
		{
			Version: 2,
			Name:    "create provider_groups",
			From:    VersionRange{Min: 1, Max: 1},
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				return execAll(ctx, tx,
					`CREATE TABLE IF NOT EXISTS provider_groups (
						id   TEXT PRIMARY KEY,
						data TEXT NOT NULL
					)`,
				)
			},
		},
		{
			Version: 3,
			Name:    "add chat_sessions.updated_at",
			From:    VersionRange{Min: 2, Max: 2},
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				has, err := hasColumn(ctx, tx, "chat_sessions", "updated_at")
				if err != nil || has {
					return err
				}
				return execAll(ctx, tx,
					`ALTER TABLE chat_sessions ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`,
				)
			},
		},
	}
}

// migrate 在单个事务中执行所有待执行的迁移
// migrate applies every pending step and the new user_version in one
// transaction. On failure nothing is committed and the store keeps its
// previous version.
func migrate(ctx context.Context, db *sql.DB, steps []Migration, logger *zap.Logger) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return &StoreError{Op: "migrate", Err: err}
	}

	sorted := append([]Migration(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	var pending []Migration
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "migrate", Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	version := current
	for _, m := range pending {
		if !m.From.Contains(version) {
			logger.Debug("migration skipped", zap.Int("version", m.Version), zap.Int("from", version))
			continue
		}
		if err := m.Apply(ctx, tx); err != nil {
			return &StoreError{Op: "migrate", Err: fmt.Errorf("v%d %s: %w", m.Version, m.Name, err)}
		}
		logger.Info("migration applied", zap.Int("version", m.Version), zap.String("name", m.Name))
		version = m.Version
	}

	// PRAGMA 不支持参数绑定 / PRAGMA does not accept bound parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return &StoreError{Op: "migrate", Err: fmt.Errorf("set user_version: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "migrate", Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	return n > 0, nil
}

func execAll(ctx context.Context, tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

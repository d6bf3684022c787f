package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gravchat/internal/chat"

	"go.uber.org/zap"
)

// PutSession 保存会话 / PutSession saves one session.
func (s *Store) PutSession(ctx context.Context, session chat.Session) error {
	return s.sessions.Put(ctx, session)
}

// GetSession 读取会话 / GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, id string) (chat.Session, error) {
	return s.sessions.Get(ctx, strings.TrimSpace(id))
}

// ListSessions 按创建时间倒序返回全部会话
// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]chat.Session, error) {
	all, err := s.sessions.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

// DeleteSession 删除会话 / DeleteSession removes one session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.sessions.Delete(ctx, id)
}

// ClearSessions 删除全部会话 / ClearSessions removes every session.
func (s *Store) ClearSessions(ctx context.Context) error {
	return s.sessions.Clear(ctx)
}

// DeleteChatsBeforeDate 删除创建时间早于 cutoff 的会话
// DeleteChatsBeforeDate removes every session created strictly before
// cutoff and returns the removed ids. A session created exactly at cutoff
// is kept.
func (s *Store) DeleteChatsBeforeDate(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.sessions.DeleteRange(ctx, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.logger.Info("retention pruned sessions",
			zap.Int("count", len(ids)),
			zap.Time("cutoff", cutoff))
	}
	return ids, nil
}

// GetSetting 读取设置原始 JSON / GetSetting returns the raw JSON value of key.
func (s *Store) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	entry, err := s.settings.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// PutSetting 写入设置；value 会被编码为 JSON
// PutSetting stores value under key as JSON.
func (s *Store) PutSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &StoreError{Op: "put", Collection: CollectionSettings, Err: fmt.Errorf("encode %s: %w", key, err)}
	}
	return s.settings.Put(ctx, chat.SettingEntry{Key: key, Value: raw})
}

// DeleteSetting 删除设置 / DeleteSetting removes key.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.settings.Delete(ctx, key)
}

// ListSettings 返回全部设置 / ListSettings returns every setting keyed by name.
func (s *Store) ListSettings(ctx context.Context) (map[string]json.RawMessage, error) {
	entries, err := s.settings.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}

// PutGroup 保存提供方分组 / PutGroup saves one provider group.
func (s *Store) PutGroup(ctx context.Context, group chat.ProviderGroup) error {
	return s.groups.Put(ctx, group)
}

// GetGroup 读取提供方分组 / GetGroup loads one provider group.
func (s *Store) GetGroup(ctx context.Context, id string) (chat.ProviderGroup, error) {
	return s.groups.Get(ctx, id)
}

// ListGroups 返回全部分组 / ListGroups returns every provider group in id order.
func (s *Store) ListGroups(ctx context.Context) ([]chat.ProviderGroup, error) {
	return s.groups.GetAll(ctx)
}

// DeleteGroup 删除分组 / DeleteGroup removes one provider group.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.groups.Delete(ctx, id)
}

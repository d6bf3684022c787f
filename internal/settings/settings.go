// Package settings keeps scalar settings in memory and writes them back
// through a debounced flush.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gravchat/internal/chat"
	"gravchat/internal/debounce"
	"gravchat/internal/logging"

	"go.uber.org/zap"
)

// DebounceKey is the scheduler key shared by all settings writes.
const DebounceKey = "settings"

// Defaults.
const (
	DefaultRetentionDays = 7
	DefaultCodeTheme     = "dracula"
)

// Backend is the persistence the service writes through.
type Backend interface {
	ListSettings(ctx context.Context) (map[string]json.RawMessage, error)
	PutSetting(ctx context.Context, key string, value any) error
	DeleteSetting(ctx context.Context, key string) error
}

// Service holds the live settings map. Reads never touch the backend;
// writes update memory immediately and persist after a quiet interval.
type Service struct {
	backend Backend
	sched   *debounce.Scheduler
	delay   time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	values  map[string]json.RawMessage
	dirty   map[string]struct{}
	removed map[string]struct{}
}

// New returns a service. A nil scheduler writes synchronously.
func New(backend Backend, sched *debounce.Scheduler, delay time.Duration, logger *zap.Logger) *Service {
	return &Service{
		backend: backend,
		sched:   sched,
		delay:   delay,
		logger:  logging.OrNop(logger).Named("settings"),
		values:  make(map[string]json.RawMessage),
		dirty:   make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Load replaces the in-memory map with the persisted settings.
func (s *Service) Load(ctx context.Context) error {
	all, err := s.backend.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range all {
		if _, pending := s.dirty[k]; pending {
			continue
		}
		s.values[k] = v
	}
	return nil
}

// Get decodes the value under key into dst and reports whether it existed.
func (s *Service) Get(key string, dst any) bool {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("undecodable setting", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores value under key and schedules a write.
func (s *Service) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	s.mu.Lock()
	s.values[key] = raw
	s.dirty[key] = struct{}{}
	delete(s.removed, key)
	s.mu.Unlock()
	s.schedule()
	return nil
}

// Delete removes key and schedules a write.
func (s *Service) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	delete(s.dirty, key)
	s.removed[key] = struct{}{}
	s.mu.Unlock()
	s.schedule()
}

// Keys returns every key with the given prefix, sorted.
func (s *Service) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Flush writes pending changes now.
func (s *Service) Flush() {
	if s.sched == nil || !s.sched.Flush(DebounceKey) {
		s.write()
	}
}

func (s *Service) schedule() {
	if s.sched == nil {
		s.write()
		return
	}
	s.sched.Schedule(DebounceKey, s.delay, s.write)
}

// write persists the latest value of every dirty key. Failures are logged
// and the keys stay dirty for the next flush.
func (s *Service) write() {
	s.mu.Lock()
	puts := make(map[string]json.RawMessage, len(s.dirty))
	for k := range s.dirty {
		puts[k] = s.values[k]
	}
	dels := make([]string, 0, len(s.removed))
	for k := range s.removed {
		dels = append(dels, k)
	}
	s.dirty = make(map[string]struct{})
	s.removed = make(map[string]struct{})
	s.mu.Unlock()

	if len(puts) == 0 && len(dels) == 0 {
		return
	}
	ctx := context.Background()
	for k, v := range puts {
		if err := s.backend.PutSetting(ctx, k, v); err != nil {
			s.logger.Warn("settings write failed", zap.String("key", k), zap.Error(err))
			s.markDirty(k)
		}
	}
	for _, k := range dels {
		if err := s.backend.DeleteSetting(ctx, k); err != nil {
			s.logger.Warn("settings delete failed", zap.String("key", k), zap.Error(err))
		}
	}
	s.logger.Debug("settings flushed", zap.Int("written", len(puts)), zap.Int("deleted", len(dels)))
}

func (s *Service) markDirty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		s.dirty[key] = struct{}{}
	}
}

// RetentionDays returns the retention window, default 7.
func (s *Service) RetentionDays() int {
	var days int
	if !s.Get(chat.SettingRetentionDays, &days) || days <= 0 {
		return DefaultRetentionDays
	}
	return days
}

// ContextEnabled reports the context-inclusion toggle, default on.
func (s *Service) ContextEnabled() bool {
	return s.boolOr(chat.SettingContextEnabled, true)
}

// DiagramsEnabled reports the diagram-rendering toggle, default on.
func (s *Service) DiagramsEnabled() bool {
	return s.boolOr(chat.SettingDiagramsEnabled, true)
}

// ActiveGroupID returns the active provider group id, or "".
func (s *Service) ActiveGroupID() string {
	return s.stringOr(chat.SettingActiveGroupID, "")
}

// ActiveModelID returns the active model id, or "".
func (s *Service) ActiveModelID() string {
	return s.stringOr(chat.SettingActiveModelID, "")
}

// CodeTheme returns the code-highlight theme id.
func (s *Service) CodeTheme() string {
	return s.stringOr(chat.SettingCodeTheme, DefaultCodeTheme)
}

func (s *Service) boolOr(key string, def bool) bool {
	var v bool
	if !s.Get(key, &v) {
		return def
	}
	return v
}

func (s *Service) stringOr(key, def string) string {
	var v string
	if !s.Get(key, &v) {
		return def
	}
	return v
}

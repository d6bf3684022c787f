package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gravchat/internal/logging"

	"go.uber.org/zap"
)

// Registry 按名称索引的适配器集合，未知名称回退到通用适配器
// Registry maps adapter kinds to implementations. Unknown kinds fall back
// to the generic adapter with a warning instead of failing.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	fallback Adapter
	logger   *zap.Logger
}

// NewRegistry 创建并注册内置适配器
// NewRegistry returns a registry holding the built-in adapters.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
		fallback: GenericAdapter{},
		logger:   logging.OrNop(logger).Named("provider"),
	}
	for _, a := range []Adapter{GenericAdapter{}, WongAdapter{}, AnyRouterAdapter{}} {
		r.adapters[a.Kind()] = a
	}
	return r
}

// Register 注册适配器；未通过能力检查时拒绝
// Register adds or replaces the adapter for kind. It rejects adapters that
// fail the capability probe: a nil adapter, an empty kind, or one that does
// not report the terminator sentinel as done.
func (r *Registry) Register(kind string, a Adapter) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return errors.New("adapter kind is empty")
	}
	if a == nil {
		return fmt.Errorf("adapter %q is nil", kind)
	}
	chunk, err := a.ParseStreamChunk(DoneSentinel)
	if err != nil || chunk == nil || !chunk.Done {
		return fmt.Errorf("adapter %q does not handle the stream terminator", kind)
	}
	r.mu.Lock()
	r.adapters[kind] = a
	r.mu.Unlock()
	return nil
}

// Get 返回适配器；未知名称回退并记录警告
// Get returns the adapter for kind, or the generic adapter when kind is unknown.
func (r *Registry) Get(kind string) Adapter {
	key := strings.ToLower(strings.TrimSpace(kind))
	r.mu.RLock()
	a, ok := r.adapters[key]
	r.mu.RUnlock()
	if ok {
		return a
	}
	r.logger.Warn("unknown adapter kind, falling back", zap.String("kind", kind), zap.String("fallback", r.fallback.Kind()))
	return r.fallback
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Package groups manages provider groups: named backend configurations
// with their own endpoint, credential and model catalog.
package groups

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"gravchat/internal/chat"
	"gravchat/internal/logging"
	"gravchat/internal/provider"
	"gravchat/internal/settings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the group persistence the manager writes through.
type Store interface {
	ListGroups(ctx context.Context) ([]chat.ProviderGroup, error)
	PutGroup(ctx context.Context, group chat.ProviderGroup) error
	DeleteGroup(ctx context.Context, id string) error
}

// CatalogFetcher lists the models an endpoint exposes.
type CatalogFetcher func(ctx context.Context, endpoint chat.EndpointConfig) ([]chat.ModelDescriptor, error)

// HTTPCatalog returns a fetcher backed by provider.FetchCatalog.
func HTTPCatalog(client *http.Client) CatalogFetcher {
	return func(ctx context.Context, endpoint chat.EndpointConfig) ([]chat.ModelDescriptor, error) {
		return provider.FetchCatalog(ctx, client, endpoint)
	}
}

// GroupConfig is the user input for a new group.
type GroupConfig struct {
	Name        string
	AdapterKind string
	Endpoint    chat.EndpointConfig
}

// SyncResult describes a finished catalog sync.
type SyncResult struct {
	GroupID string
	Models  int
	Added   []string
	Removed []string
	At      time.Time
}

// Notifier receives the outcome of a sync the caller asked to be told about.
type Notifier func(result SyncResult, err error)

// Target is what the engine needs to issue a turn.
type Target struct {
	Group   chat.ProviderGroup
	ModelID string
}

// Manager 提供方分组的增删改与目录同步
// Manager owns the provider-group list and the active group pointer.
// Groups are written through to the store immediately; catalog caches go
// through the debounced settings service.
type Manager struct {
	store    Store
	settings *settings.Service
	fetch    CatalogFetcher
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	groups []chat.ProviderGroup // id order

	Decorations Decorations
}

// NewManager creates a manager. Call Load before use.
func NewManager(store Store, svc *settings.Service, fetch CatalogFetcher, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		settings: svc,
		fetch:    fetch,
		logger:   logging.OrNop(logger).Named("groups"),
		now:      time.Now,
	}
}

// Load 读取已保存分组，并合并配置中声明的内置分组
// Load reads the persisted groups and merges the built-in groups declared
// in configuration. A built-in group keeps its stored catalog but takes its
// endpoint from configuration.
func (m *Manager) Load(ctx context.Context, builtins []chat.ProviderGroup) error {
	stored, err := m.store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("load provider groups: %w", err)
	}
	byID := make(map[string]chat.ProviderGroup, len(stored)+len(builtins))
	for _, g := range stored {
		byID[g.ID] = g
	}
	for _, b := range builtins {
		if strings.TrimSpace(b.ID) == "" {
			continue
		}
		b.IsUserDefined = false
		if prev, ok := byID[b.ID]; ok && len(b.Models) == 0 {
			b.Models = prev.Models
		}
		if prev, ok := byID[b.ID]; !ok || !sameGroup(prev, b) {
			if err := m.store.PutGroup(ctx, b); err != nil {
				m.logger.Warn("persist built-in group failed", zap.String("group", b.ID), zap.Error(err))
			}
		}
		byID[b.ID] = b
	}

	list := make([]chat.ProviderGroup, 0, len(byID))
	for _, g := range byID {
		list = append(list, g)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	m.mu.Lock()
	m.groups = list
	m.mu.Unlock()
	m.logger.Debug("provider groups loaded", zap.Int("count", len(list)))
	return nil
}

func sameGroup(a, b chat.ProviderGroup) bool {
	if a.Name != b.Name || a.AdapterKind != b.AdapterKind || a.Endpoint != b.Endpoint ||
		a.IsUserDefined != b.IsUserDefined || len(a.Models) != len(b.Models) {
		return false
	}
	for i := range a.Models {
		if a.Models[i] != b.Models[i] {
			return false
		}
	}
	return true
}

// Groups returns a copy of every group in id order.
func (m *Manager) Groups() []chat.ProviderGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chat.ProviderGroup, len(m.groups))
	for i, g := range m.groups {
		out[i] = copyGroup(g)
	}
	return out
}

// Group returns the group with id.
func (m *Manager) Group(id string) (chat.ProviderGroup, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(id); i >= 0 {
		return copyGroup(m.groups[i]), true
	}
	return chat.ProviderGroup{}, false
}

// ActiveGroup returns the active group, if any.
func (m *Manager) ActiveGroup() (chat.ProviderGroup, bool) {
	return m.Group(m.settings.ActiveGroupID())
}

func (m *Manager) indexOf(id string) int {
	for i := range m.groups {
		if m.groups[i].ID == id {
			return i
		}
	}
	return -1
}

func copyGroup(g chat.ProviderGroup) chat.ProviderGroup {
	g.Models = append([]chat.ModelDescriptor(nil), g.Models...)
	return g
}

// CreateGroup 校验配置并实时拉取目录，成功后才持久化
// CreateGroup validates cfg, fetches the live catalog and only then
// persists the group and seeds its cache. It fails atomically with a
// *ValidationError or *CatalogFetchError. When nothing is selected yet the
// new group and its first model become active.
func (m *Manager) CreateGroup(ctx context.Context, cfg GroupConfig) (chat.ProviderGroup, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Endpoint.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Endpoint.BaseURL), "/")
	cfg.Endpoint.Path = strings.TrimSpace(cfg.Endpoint.Path)
	cfg.Endpoint.Credential = strings.TrimSpace(cfg.Endpoint.Credential)
	if cfg.Endpoint.BaseURL == "" {
		return chat.ProviderGroup{}, &ValidationError{Field: "baseUrl"}
	}
	if cfg.Endpoint.Credential == "" {
		return chat.ProviderGroup{}, &ValidationError{Field: "apiKey"}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Endpoint.BaseURL
	}
	if strings.TrimSpace(cfg.AdapterKind) == "" {
		cfg.AdapterKind = provider.KindOpenAI
	}

	models, err := m.fetch(ctx, cfg.Endpoint)
	if err == nil && len(models) == 0 {
		err = provider.ErrEmptyCatalog
	}
	if err != nil {
		return chat.ProviderGroup{}, &CatalogFetchError{Err: err}
	}

	group := chat.ProviderGroup{
		ID:            uuid.NewString(),
		Name:          cfg.Name,
		AdapterKind:   cfg.AdapterKind,
		Endpoint:      cfg.Endpoint,
		Models:        models,
		IsUserDefined: true,
	}
	if err := m.store.PutGroup(ctx, group); err != nil {
		return chat.ProviderGroup{}, fmt.Errorf("persist provider group: %w", err)
	}

	m.mu.Lock()
	m.groups = append(m.groups, group)
	sort.Slice(m.groups, func(i, j int) bool { return m.groups[i].ID < m.groups[j].ID })
	m.mu.Unlock()

	m.writeCache(group)
	// 仅在没有可用的已选模型时激活 / activate only when no selected model resolves
	if _, ok := m.ResolveModel(m.settings.ActiveModelID()); !ok {
		if err := m.activate(group, models[0].ID); err != nil {
			m.logger.Warn("activate new group failed", zap.String("group", group.ID), zap.Error(err))
		}
	}
	m.logger.Info("provider group created",
		zap.String("group", group.ID),
		zap.String("name", group.Name),
		zap.Int("models", len(models)))
	return copyGroup(group), nil
}

// DeleteGroup 删除用户自建分组；若为当前分组则回退到剩余的第一个
// DeleteGroup removes a user-defined group and its cache. If it was active,
// the first remaining group in id order becomes active, or none.
func (m *Manager) DeleteGroup(ctx context.Context, id string) error {
	m.mu.RLock()
	i := m.indexOf(id)
	var group chat.ProviderGroup
	if i >= 0 {
		group = m.groups[i]
	}
	m.mu.RUnlock()
	if i < 0 {
		return ErrGroupNotFound
	}
	if !group.IsUserDefined {
		return ErrBuiltinGroup
	}

	if err := m.store.DeleteGroup(ctx, id); err != nil {
		return fmt.Errorf("delete provider group: %w", err)
	}
	m.mu.Lock()
	if j := m.indexOf(id); j >= 0 {
		m.groups = append(m.groups[:j], m.groups[j+1:]...)
	}
	var next *chat.ProviderGroup
	if len(m.groups) > 0 {
		g := copyGroup(m.groups[0])
		next = &g
	}
	m.mu.Unlock()

	// 跨集合操作非原子：分组已删除，缓存删除失败仅留下孤立条目
	// Not atomic across collections: a leftover cache entry is harmless
	// because it never matches a live group.
	m.settings.Delete(chat.CatalogCacheKey(id))

	if m.settings.ActiveGroupID() == id {
		if next == nil {
			m.settings.Delete(chat.SettingActiveGroupID)
			m.settings.Delete(chat.SettingActiveModelID)
		} else {
			modelID := ""
			if len(next.Models) > 0 {
				modelID = next.Models[0].ID
			}
			if err := m.activate(*next, modelID); err != nil {
				return err
			}
		}
	}
	m.logger.Info("provider group deleted", zap.String("group", id))
	return nil
}

// UpdateEndpointConfig 保存新配置；地址、路径或密钥变化且配置完整时自动重新同步
// UpdateEndpointConfig persists cfg for group id. When URL, path or key
// changed and the new config is complete, the catalog is re-synced and the
// result returned; otherwise the result is nil.
func (m *Manager) UpdateEndpointConfig(ctx context.Context, id string, cfg chat.EndpointConfig) (*SyncResult, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Path = strings.TrimSpace(cfg.Path)
	cfg.Credential = strings.TrimSpace(cfg.Credential)

	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return nil, ErrGroupNotFound
	}
	changed := endpointChanged(m.groups[i].Endpoint, cfg)
	m.groups[i].Endpoint = cfg
	group := copyGroup(m.groups[i])
	m.mu.Unlock()

	if err := m.store.PutGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("persist provider group: %w", err)
	}
	if !changed || !cfg.Complete() {
		return nil, nil
	}
	res, err := m.SyncCatalog(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SyncCatalog 拉取最新目录并替换模型集合；失败时保留原有模型
// SyncCatalog fetches the live catalog, replaces the group's models and
// refreshes the cache. On failure it returns a *SyncError and leaves the
// existing models untouched. notify, when non-nil, receives the outcome.
func (m *Manager) SyncCatalog(ctx context.Context, id string, notify Notifier) (SyncResult, error) {
	res, err := m.syncCatalog(ctx, id)
	if err != nil {
		m.logger.Warn("catalog sync failed", zap.String("group", id), zap.Error(err))
	}
	if notify != nil {
		notify(res, err)
	}
	return res, err
}

func (m *Manager) syncCatalog(ctx context.Context, id string) (SyncResult, error) {
	group, ok := m.Group(id)
	if !ok {
		return SyncResult{GroupID: id}, &SyncError{GroupID: id, Err: ErrGroupNotFound}
	}
	if !group.Endpoint.Complete() {
		return SyncResult{GroupID: id}, &SyncError{GroupID: id, Err: &ValidationError{Field: "apiKey"}}
	}
	models, err := m.fetch(ctx, group.Endpoint)
	if err == nil && len(models) == 0 {
		err = provider.ErrEmptyCatalog
	}
	if err != nil {
		return SyncResult{GroupID: id}, &SyncError{GroupID: id, Err: err}
	}

	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return SyncResult{GroupID: id}, &SyncError{GroupID: id, Err: ErrGroupNotFound}
	}
	added, removed := diffModels(m.groups[i].Models, models)
	m.groups[i].Models = models
	group = copyGroup(m.groups[i])
	m.mu.Unlock()

	if err := m.store.PutGroup(ctx, group); err != nil {
		m.logger.Warn("persist synced group failed", zap.String("group", id), zap.Error(err))
	}
	m.writeCache(group)

	// 当前模型已不在目录中时回退到第一个模型 / keep the active model valid
	if m.settings.ActiveGroupID() == id && !group.HasModel(m.settings.ActiveModelID()) {
		_ = m.settings.Set(chat.SettingActiveModelID, group.Models[0].ID)
	}
	return SyncResult{
		GroupID: id,
		Models:  len(models),
		Added:   added,
		Removed: removed,
		At:      m.now(),
	}, nil
}

func diffModels(before, after []chat.ModelDescriptor) (added, removed []string) {
	old := make(map[string]struct{}, len(before))
	for _, md := range before {
		old[md.ID] = struct{}{}
	}
	cur := make(map[string]struct{}, len(after))
	for _, md := range after {
		cur[md.ID] = struct{}{}
		if _, ok := old[md.ID]; !ok {
			added = append(added, md.ID)
		}
	}
	for _, md := range before {
		if _, ok := cur[md.ID]; !ok {
			removed = append(removed, md.ID)
		}
	}
	return added, removed
}

// LoadModelsPreferCache 指纹匹配时使用缓存，否则在凭据齐全时同步
// LoadModelsPreferCache returns the cached catalog when its fingerprint
// matches the group's live endpoint. Otherwise it syncs when credentials
// are present, or returns the group's current models untouched.
func (m *Manager) LoadModelsPreferCache(ctx context.Context, id string) ([]chat.ModelDescriptor, error) {
	group, ok := m.Group(id)
	if !ok {
		return nil, ErrGroupNotFound
	}
	var cache chat.ModelCatalogCache
	if m.settings.Get(chat.CatalogCacheKey(id), &cache) && CacheValid(cache, group) {
		m.mu.Lock()
		if i := m.indexOf(id); i >= 0 {
			m.groups[i].Models = append([]chat.ModelDescriptor(nil), cache.Models...)
		}
		m.mu.Unlock()
		return append([]chat.ModelDescriptor(nil), cache.Models...), nil
	}
	if !group.Endpoint.Complete() {
		return group.Models, nil
	}
	if _, err := m.SyncCatalog(ctx, id, nil); err != nil {
		return group.Models, err
	}
	synced, _ := m.Group(id)
	return synced.Models, nil
}

func (m *Manager) writeCache(group chat.ProviderGroup) {
	cache := chat.ModelCatalogCache{
		GroupID:             group.ID,
		Models:              group.Models,
		CachedAt:            m.now(),
		EndpointFingerprint: Fingerprint(group.Endpoint),
	}
	if err := m.settings.Set(chat.CatalogCacheKey(group.ID), cache); err != nil {
		m.logger.Warn("write catalog cache failed", zap.String("group", group.ID), zap.Error(err))
	}
}

// ResolveModel 线性扫描所有分组，找到拥有该模型的分组
// ResolveModel finds the group owning modelID by scanning every group's
// models. The active group is checked first.
func (m *Manager) ResolveModel(modelID string) (chat.ProviderGroup, bool) {
	if modelID == "" {
		return chat.ProviderGroup{}, false
	}
	if g, ok := m.ActiveGroup(); ok && g.HasModel(modelID) {
		return g, true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.groups {
		if g.HasModel(modelID) {
			return copyGroup(g), true
		}
	}
	return chat.ProviderGroup{}, false
}

// SelectModel makes modelID active, switching to its owning group if needed.
func (m *Manager) SelectModel(modelID string) error {
	g, ok := m.ResolveModel(modelID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	return m.activate(g, modelID)
}

// SetActiveGroup makes group id active. The active model is kept when the
// group lists it, otherwise the group's first model is selected.
func (m *Manager) SetActiveGroup(id string) error {
	g, ok := m.Group(id)
	if !ok {
		return ErrGroupNotFound
	}
	modelID := m.settings.ActiveModelID()
	if !g.HasModel(modelID) {
		modelID = ""
		if len(g.Models) > 0 {
			modelID = g.Models[0].ID
		}
	}
	return m.activate(g, modelID)
}

func (m *Manager) activate(g chat.ProviderGroup, modelID string) error {
	if err := m.settings.Set(chat.SettingActiveGroupID, g.ID); err != nil {
		return err
	}
	if modelID == "" {
		m.settings.Delete(chat.SettingActiveModelID)
		return nil
	}
	return m.settings.Set(chat.SettingActiveModelID, modelID)
}

// ActiveTarget 返回当前分组与模型；模型不属于当前分组时自动切换
// ActiveTarget returns the active group and model. When the active model
// no longer belongs to the active group, the owning group is located and
// activated.
func (m *Manager) ActiveTarget() (Target, error) {
	modelID := m.settings.ActiveModelID()
	if modelID == "" {
		return Target{}, ErrNoActiveModel
	}
	if g, ok := m.ActiveGroup(); ok && g.HasModel(modelID) {
		return Target{Group: g, ModelID: modelID}, nil
	}
	g, ok := m.ResolveModel(modelID)
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	if err := m.settings.Set(chat.SettingActiveGroupID, g.ID); err != nil {
		return Target{}, err
	}
	m.logger.Info("active group switched to model owner", zap.String("group", g.ID), zap.String("model", modelID))
	return Target{Group: g, ModelID: modelID}, nil
}

package groups

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gravchat/internal/chat"
	"gravchat/internal/settings"
	"gravchat/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu     sync.Mutex
	calls  int
	models []chat.ModelDescriptor
	err    error
}

func (f *fakeCatalog) fetch(_ context.Context, _ chat.EndpointConfig) ([]chat.ModelDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]chat.ModelDescriptor(nil), f.models...), nil
}

func (f *fakeCatalog) set(err error, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.models = nil
	for _, id := range ids {
		f.models = append(f.models, chat.ModelDescriptor{ID: id, DisplayName: id})
	}
}

func (f *fakeCatalog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	store    *storage.Store
	settings *settings.Service
	catalog  *fakeCatalog
	manager  *Manager
}

func newHarness(t *testing.T, builtins ...chat.ProviderGroup) *harness {
	t.Helper()
	store := storage.New(filepath.Join(t.TempDir(), "groups.db"), nil)
	t.Cleanup(func() { _ = store.Close() })
	svc := settings.New(store, nil, 0, nil)
	cat := &fakeCatalog{}
	m := NewManager(store, svc, cat.fetch, nil)
	require.NoError(t, m.Load(context.Background(), builtins))
	return &harness{store: store, settings: svc, catalog: cat, manager: m}
}

func (h *harness) create(t *testing.T, name string, ids ...string) chat.ProviderGroup {
	t.Helper()
	h.catalog.set(nil, ids...)
	g, err := h.manager.CreateGroup(context.Background(), GroupConfig{
		Name:     name,
		Endpoint: chat.EndpointConfig{BaseURL: "https://" + name + ".example.com", Credential: "k"},
	})
	require.NoError(t, err)
	return g
}

func TestCreateGroup_ScenarioA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"m1"}]}`))
	}))
	defer srv.Close()

	store := storage.New(filepath.Join(t.TempDir(), "a.db"), nil)
	t.Cleanup(func() { _ = store.Close() })
	svc := settings.New(store, nil, 0, nil)
	m := NewManager(store, svc, HTTPCatalog(srv.Client()), nil)
	require.NoError(t, m.Load(context.Background(), nil))

	g, err := m.CreateGroup(context.Background(), GroupConfig{
		Name:     "example",
		Endpoint: chat.EndpointConfig{BaseURL: srv.URL, Credential: "k"},
	})
	require.NoError(t, err)
	require.Len(t, g.Models, 1)
	assert.Equal(t, "m1", g.Models[0].ID)
	assert.True(t, g.IsUserDefined)
	assert.Equal(t, "m1", svc.ActiveModelID())
	assert.Equal(t, g.ID, svc.ActiveGroupID())

	stored, err := store.GetGroup(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, g, stored)

	var cache chat.ModelCatalogCache
	require.True(t, svc.Get(chat.CatalogCacheKey(g.ID), &cache))
	assert.True(t, CacheValid(cache, g))
}

func TestCreateGroup_KeepsSelectedModel(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, "first", "m1")
	h.settings.Delete(chat.SettingActiveGroupID)

	h.create(t, "second", "m2")
	assert.Equal(t, "m1", h.settings.ActiveModelID())

	target, err := h.manager.ActiveTarget()
	require.NoError(t, err)
	assert.Equal(t, first.ID, target.Group.ID)
}

func TestCreateGroup_ReplacesUnresolvableModel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Set(chat.SettingActiveModelID, "gone"))

	g := h.create(t, "fresh", "m1")
	assert.Equal(t, "m1", h.settings.ActiveModelID())
	assert.Equal(t, g.ID, h.settings.ActiveGroupID())
}

func TestCreateGroup_ValidationBeforeIO(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.CreateGroup(context.Background(), GroupConfig{Endpoint: chat.EndpointConfig{BaseURL: "https://x"}})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "apiKey", ve.Field)

	_, err = h.manager.CreateGroup(context.Background(), GroupConfig{Endpoint: chat.EndpointConfig{Credential: "k"}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "baseUrl", ve.Field)
	assert.Zero(t, h.catalog.count())
}

func TestCreateGroup_CatalogFailureIsAtomic(t *testing.T) {
	h := newHarness(t)
	for _, setup := range []func(){
		func() { h.catalog.set(errors.New("connection refused")) },
		func() { h.catalog.set(nil) },
	} {
		setup()
		_, err := h.manager.CreateGroup(context.Background(), GroupConfig{
			Endpoint: chat.EndpointConfig{BaseURL: "https://x", Credential: "k"},
		})
		var cfe *CatalogFetchError
		require.ErrorAs(t, err, &cfe)
	}
	groups, err := h.store.ListGroups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Empty(t, h.manager.Groups())
	assert.Empty(t, h.settings.ActiveGroupID())
}

func TestDeleteGroup(t *testing.T) {
	builtin := chat.ProviderGroup{ID: "builtin", Name: "Built-in", AdapterKind: "openai",
		Models: []chat.ModelDescriptor{{ID: "b1"}}}
	h := newHarness(t, builtin)
	ctx := context.Background()

	assert.ErrorIs(t, h.manager.DeleteGroup(ctx, "builtin"), ErrBuiltinGroup)
	assert.ErrorIs(t, h.manager.DeleteGroup(ctx, "nope"), ErrGroupNotFound)

	first := h.create(t, "first", "m1")
	require.Equal(t, first.ID, h.settings.ActiveGroupID())

	require.NoError(t, h.manager.DeleteGroup(ctx, first.ID))
	assert.Equal(t, "builtin", h.settings.ActiveGroupID(), "falls back to the first remaining group")
	assert.Equal(t, "b1", h.settings.ActiveModelID())
	var cache chat.ModelCatalogCache
	assert.False(t, h.settings.Get(chat.CatalogCacheKey(first.ID), &cache))
}

func TestDeleteLastGroupClearsActive(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "only", "m1")
	require.NoError(t, h.manager.DeleteGroup(context.Background(), g.ID))
	assert.Empty(t, h.settings.ActiveGroupID())
	assert.Empty(t, h.settings.ActiveModelID())
}

func TestUpdateEndpointConfig(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "g", "m1")
	before := h.catalog.count()

	res, err := h.manager.UpdateEndpointConfig(context.Background(), g.ID, g.Endpoint)
	require.NoError(t, err)
	assert.Nil(t, res, "unchanged config does not resync")
	assert.Equal(t, before, h.catalog.count())

	h.catalog.set(nil, "m1", "m2")
	cfg := g.Endpoint
	cfg.Credential = "k2"
	res, err = h.manager.UpdateEndpointConfig(context.Background(), g.ID, cfg)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"m2"}, res.Added)

	cfg.Credential = ""
	res, err = h.manager.UpdateEndpointConfig(context.Background(), g.ID, cfg)
	require.NoError(t, err)
	assert.Nil(t, res, "incomplete config is saved without resync")
	stored, _ := h.store.GetGroup(context.Background(), g.ID)
	assert.Empty(t, stored.Endpoint.Credential)
}

func TestSyncCatalogFailureKeepsModels(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "g", "m1", "m2")

	h.catalog.set(errors.New("timeout"))
	var notified error
	_, err := h.manager.SyncCatalog(context.Background(), g.ID, func(_ SyncResult, err error) { notified = err })
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, g.ID, se.GroupID)
	assert.Equal(t, err, notified)

	after, _ := h.manager.Group(g.ID)
	assert.Len(t, after.Models, 2)

	h.catalog.set(nil, "m2", "m3")
	res, err := h.manager.SyncCatalog(context.Background(), g.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, res.Added)
	assert.Equal(t, []string{"m1"}, res.Removed)
	assert.Equal(t, "m2", h.settings.ActiveModelID(), "removed active model falls back to the first model")
}

func TestLoadModelsPreferCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.create(t, "g", "m1")
	calls := h.catalog.count()

	models, err := h.manager.LoadModelsPreferCache(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "m1", models[0].ID)
	assert.Equal(t, calls, h.catalog.count(), "valid cache avoids a fetch")

	// 缓存时间很新但指纹不匹配 / fresh cache with a stale fingerprint
	stale := chat.ModelCatalogCache{
		GroupID:             g.ID,
		Models:              []chat.ModelDescriptor{{ID: "cached"}},
		CachedAt:            time.Now(),
		EndpointFingerprint: Fingerprint(chat.EndpointConfig{BaseURL: "https://elsewhere"}),
	}
	require.NoError(t, h.settings.Set(chat.CatalogCacheKey(g.ID), stale))
	assert.False(t, CacheValid(stale, g))

	h.catalog.set(nil, "live")
	models, err = h.manager.LoadModelsPreferCache(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "live", models[0].ID)
	assert.Equal(t, calls+1, h.catalog.count())
}

func TestLoadModelsPreferCache_NoCredentials(t *testing.T) {
	builtin := chat.ProviderGroup{ID: "b", Endpoint: chat.EndpointConfig{BaseURL: "https://b"},
		Models: []chat.ModelDescriptor{{ID: "keep"}}}
	h := newHarness(t, builtin)
	models, err := h.manager.LoadModelsPreferCache(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "keep", models[0].ID)
	assert.Zero(t, h.catalog.count())
}

func TestResolveAndActiveTarget(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "a", "shared", "only-a")
	b := h.create(t, "b", "only-b")
	require.Equal(t, a.ID, h.settings.ActiveGroupID())

	owner, ok := h.manager.ResolveModel("only-b")
	require.True(t, ok)
	assert.Equal(t, b.ID, owner.ID)
	_, ok = h.manager.ResolveModel("ghost")
	assert.False(t, ok)

	// 当前模型不属于当前分组时自动切换 / model outside the active group switches groups
	require.NoError(t, h.settings.Set(chat.SettingActiveModelID, "only-b"))
	target, err := h.manager.ActiveTarget()
	require.NoError(t, err)
	assert.Equal(t, b.ID, target.Group.ID)
	assert.Equal(t, b.ID, h.settings.ActiveGroupID())

	require.NoError(t, h.manager.SelectModel("only-a"))
	assert.Equal(t, a.ID, h.settings.ActiveGroupID())
	assert.ErrorIs(t, h.manager.SelectModel("ghost"), ErrModelNotFound)

	require.NoError(t, h.manager.SetActiveGroup(b.ID))
	assert.Equal(t, "only-b", h.settings.ActiveModelID())
}

func TestBuiltinGroupsPersistAcrossLoad(t *testing.T) {
	builtin := chat.ProviderGroup{ID: "cfg", Name: "Configured", AdapterKind: "wong", IsUserDefined: true,
		Endpoint: chat.EndpointConfig{BaseURL: "https://cfg", Credential: "k"}}
	h := newHarness(t, builtin)

	g, ok := h.manager.Group("cfg")
	require.True(t, ok)
	assert.False(t, g.IsUserDefined, "config groups are never user-defined")

	h.catalog.set(nil, "c1")
	_, err := h.manager.SyncCatalog(context.Background(), "cfg", nil)
	require.NoError(t, err)

	again := NewManager(h.store, h.settings, h.catalog.fetch, nil)
	require.NoError(t, again.Load(context.Background(), []chat.ProviderGroup{builtin}))
	g, _ = again.Group("cfg")
	require.Len(t, g.Models, 1, "stored catalog survives reload")
	assert.Equal(t, "c1", g.Models[0].ID)
}

func TestDecorationsNotSerialized(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "g", "m1")
	h.manager.Decorations.Set("m1", Decoration{Icon: "sparkles"})

	dec, ok := h.manager.Decorations.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "sparkles", dec.Icon)

	raw, err := h.store.GetGroup(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, g, raw)
}

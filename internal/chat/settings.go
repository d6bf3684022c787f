package chat

// Setting keys persisted in the settings collection.
const (
	SettingRetentionDays   = "retention_days"
	SettingContextEnabled  = "context_enabled"
	SettingDiagramsEnabled = "diagrams_enabled"
	SettingActiveGroupID   = "active_group_id"
	SettingActiveModelID   = "active_model_id"
	SettingCodeTheme       = "code_theme"

	catalogCachePrefix = "model_cache_"
)

// CatalogCacheKey is the settings key holding a group's catalog cache.
func CatalogCacheKey(groupID string) string {
	return catalogCachePrefix + groupID
}

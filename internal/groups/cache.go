package groups

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"gravchat/internal/chat"
)

// Fingerprint 由 baseUrl 与 path 派生，凭据不参与
// Fingerprint identifies the endpoint a catalog was fetched from. It is
// derived from base URL and path only.
func Fingerprint(endpoint chat.EndpointConfig) string {
	base := strings.TrimRight(strings.TrimSpace(endpoint.BaseURL), "/")
	path := strings.TrimSpace(endpoint.Path)
	sum := sha256.Sum256([]byte(base + "\x00" + path))
	return hex.EncodeToString(sum[:8])
}

// CacheValid reports whether cache may stand in for a live fetch for group.
func CacheValid(cache chat.ModelCatalogCache, group chat.ProviderGroup) bool {
	return cache.GroupID == group.ID &&
		cache.EndpointFingerprint != "" &&
		cache.EndpointFingerprint == Fingerprint(group.Endpoint) &&
		len(cache.Models) > 0
}

func endpointChanged(a, b chat.EndpointConfig) bool {
	norm := func(c chat.EndpointConfig) chat.EndpointConfig {
		return chat.EndpointConfig{
			BaseURL:    strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"),
			Path:       strings.TrimSpace(c.Path),
			Credential: strings.TrimSpace(c.Credential),
		}
	}
	return norm(a) != norm(b)
}

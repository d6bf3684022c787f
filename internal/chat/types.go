package chat

import (
	"encoding/json"
	"time"
)

// Role values used in transcripts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentPart represents a part of a multi-modal message content
type ContentPart interface {
	isContentPart()
}

// TextContent represents text content in a multi-modal message
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (t TextContent) isContentPart() {}

// ImageContent represents image content in a multi-modal message
type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

func (i ImageContent) isContentPart() {}

// ImageURL represents an image URL in multi-modal messages
type ImageURL struct {
	URL    string `json:"url"`              // URL or data URL
	Detail string `json:"detail,omitempty"` // "low", "high", or "auto"
}

// Message is one transcript entry. It is mutated in place only while
// Streaming is true.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming,omitempty"`
	Error     bool      `json:"error,omitempty"`
}

// Session is one persisted conversation.
type Session struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Messages        []Message `json:"messages"`
	ProviderModelID string    `json:"modelId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// EndpointConfig is where and how a provider group is reached.
type EndpointConfig struct {
	BaseURL    string `json:"baseUrl"`
	Path       string `json:"path"`
	Credential string `json:"apiKey"`
}

// Complete reports whether both the endpoint and the credential are present.
func (c EndpointConfig) Complete() bool {
	return c.BaseURL != "" && c.Credential != ""
}

// ModelDescriptor is derived from a remote catalog entry.
type ModelDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Description string `json:"desc"`
}

// ProviderGroup bundles one backend configuration and its model catalog.
type ProviderGroup struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	AdapterKind   string            `json:"adapter"`
	Endpoint      EndpointConfig    `json:"endpoint"`
	Models        []ModelDescriptor `json:"models"`
	IsUserDefined bool              `json:"isUserDefined"`
}

// HasModel reports whether modelID is part of the group's catalog.
func (g ProviderGroup) HasModel(modelID string) bool {
	for _, m := range g.Models {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// ModelCatalogCache is a cached catalog stamped with the endpoint it came from.
type ModelCatalogCache struct {
	GroupID             string            `json:"groupId"`
	Models              []ModelDescriptor `json:"models"`
	CachedAt            time.Time         `json:"cachedAt"`
	EndpointFingerprint string            `json:"fingerprint"`
}

// SettingEntry is an opaque scalar setting. Value holds raw JSON.
type SettingEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

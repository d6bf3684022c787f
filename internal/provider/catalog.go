package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gravchat/internal/chat"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCatalog is returned when the catalog response lists no models.
var ErrEmptyCatalog = errors.New("catalog returned no models")

// FetchCatalog 拉取 {baseUrl}/v1/models 并转换为模型描述
// FetchCatalog lists the models exposed at {baseUrl}/v1/models using the
// endpoint's bearer credential. A non-2xx status, an undecodable body, or
// an empty data array are all failures.
func FetchCatalog(ctx context.Context, client *http.Client, endpoint chat.EndpointConfig) ([]chat.ModelDescriptor, error) {
	base := strings.TrimRight(strings.TrimSpace(endpoint.BaseURL), "/")
	if base == "" || strings.TrimSpace(endpoint.Credential) == "" {
		return nil, errors.New("base url and credential are required")
	}

	cfg := openai.DefaultConfig(strings.TrimSpace(endpoint.Credential))
	cfg.BaseURL = base + "/v1"
	if client != nil {
		cfg.HTTPClient = client
	}
	resp, err := openai.NewClientWithConfig(cfg).ListModels(ctx)
	if err != nil {
		return nil, catalogError(err)
	}
	if len(resp.Models) == 0 {
		return nil, ErrEmptyCatalog
	}

	models := make([]chat.ModelDescriptor, 0, len(resp.Models))
	seen := make(map[string]struct{}, len(resp.Models))
	for _, m := range resp.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		models = append(models, chat.ModelDescriptor{
			ID:          id,
			DisplayName: DisplayName(id),
			Description: Description(id),
		})
	}
	if len(models) == 0 {
		return nil, ErrEmptyCatalog
	}
	return models, nil
}

func catalogError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return fmt.Errorf("list models: %w", err)
}

package provider

import (
	"gravchat/internal/chat"
)

// WongAdapter 与通用方言一致，但不接受 top_p
// WongAdapter is the generic dialect minus top_p, which the service rejects.
type WongAdapter struct {
	GenericAdapter
}

// Kind implements Adapter.
func (WongAdapter) Kind() string { return KindWong }

// FormatRequest implements Adapter.
func (a WongAdapter) FormatRequest(messages []chat.Message, modelID string, opts Options) (Request, error) {
	req, err := a.GenericAdapter.FormatRequest(messages, modelID, opts)
	if err != nil {
		return Request{}, err
	}
	req.TopP = nil
	return req, nil
}

// AnyRouterAdapter 与通用方言一致，额外透传模型 metadata
// AnyRouterAdapter is the generic dialect plus a top-level metadata object
// forwarded from Options.
type AnyRouterAdapter struct {
	GenericAdapter
}

// Kind implements Adapter.
func (AnyRouterAdapter) Kind() string { return KindAnyRouter }

// FormatRequest implements Adapter.
func (a AnyRouterAdapter) FormatRequest(messages []chat.Message, modelID string, opts Options) (Request, error) {
	req, err := a.GenericAdapter.FormatRequest(messages, modelID, opts)
	if err != nil {
		return Request{}, err
	}
	if len(opts.Metadata) > 0 {
		req.Metadata = make(map[string]any, len(opts.Metadata))
		for k, v := range opts.Metadata {
			req.Metadata[k] = v
		}
	}
	return req, nil
}

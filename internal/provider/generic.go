package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"gravchat/internal/chat"

	openai "github.com/sashabaranov/go-openai"
)

// GenericAdapter OpenAI 兼容的默认适配器
// GenericAdapter speaks the OpenAI-compatible chat completion dialect.
// It is the registry fallback and the base the variants wrap.
type GenericAdapter struct{}

// Kind implements Adapter.
func (GenericAdapter) Kind() string { return KindOpenAI }

// FormatRequest implements Adapter.
func (GenericAdapter) FormatRequest(messages []chat.Message, modelID string, opts Options) (Request, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return Request{}, fmt.Errorf("model id is empty")
	}
	req := Request{
		Model:       modelID,
		Messages:    make([]WireMessage, 0, len(messages)),
		Stream:      !opts.DisableStream,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, wireMessage(m))
	}
	return req, nil
}

func wireMessage(m chat.Message) WireMessage {
	if len(m.Images) == 0 {
		return WireMessage{Role: m.Role, Content: m.Content}
	}
	parts := make([]chat.ContentPart, 0, len(m.Images)+1)
	parts = append(parts, chat.TextContent{Type: "text", Text: m.Content})
	for _, img := range m.Images {
		parts = append(parts, chat.ImageContent{Type: "image_url", ImageURL: chat.ImageURL{URL: img}})
	}
	return WireMessage{Role: m.Role, Content: parts}
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ParseResponse implements Adapter.
func (GenericAdapter) ParseResponse(body []byte) (Reply, error) {
	var raw completionResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(raw.Choices) == 0 || raw.Choices[0].Message == nil {
		return Reply{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	msg := raw.Choices[0].Message
	content, err := parseContent(msg.Content)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	role := msg.Role
	if role == "" {
		role = chat.RoleAssistant
	}
	return Reply{Content: content, Role: role, Model: raw.Model}, nil
}

// ParseStreamChunk implements Adapter.
func (GenericAdapter) ParseStreamChunk(payload string) (*StreamChunk, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == DoneSentinel {
		return &StreamChunk{Done: true}, nil
	}

	var event openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &event); err == nil {
		if len(event.Choices) == 0 {
			return nil, nil
		}
		choice := event.Choices[0]
		return chunkOf(choice.Delta.Content, string(choice.FinishReason))
	}

	// 部分服务端以片段数组返回 delta.content，或截断了根对象的闭合 }
	// Some servers send delta.content as typed parts or drop the closing brace.
	return parseLooseChunk([]byte(payload))
}

func chunkOf(content, finishReason string) (*StreamChunk, error) {
	done := finishReason != "" && finishReason != "null"
	if content == "" && !done {
		return nil, nil
	}
	return &StreamChunk{Content: content, Done: done}, nil
}

type looseStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content json.RawMessage `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseLooseChunk(data []byte) (*StreamChunk, error) {
	var event looseStreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		errStr := err.Error()
		if !strings.Contains(errStr, "unexpected end of JSON input") &&
			!strings.Contains(errStr, "after object key:value pair") {
			return nil, fmt.Errorf("parse stream chunk: %w", err)
		}
		data = append(data, '}')
		if retryErr := json.Unmarshal(data, &event); retryErr != nil {
			return nil, fmt.Errorf("parse stream chunk: %w (retry: %v)", err, retryErr)
		}
	}
	if len(event.Choices) == 0 {
		return nil, nil
	}
	choice := event.Choices[0]
	text, err := parseDeltaContent(choice.Delta.Content)
	if err != nil {
		return nil, err
	}
	return chunkOf(text, choice.FinishReason)
}

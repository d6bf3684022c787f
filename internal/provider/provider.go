package provider

import (
	"gravchat/internal/chat"
)

// Options 单次请求的可选参数
// Options carries per-request tuning. Zero values are omitted from the body.
type Options struct {
	DisableStream bool
	Temperature   *float64
	TopP          *float64
	MaxTokens     int
	Metadata      map[string]any
}

// WireMessage 发往服务端的单条消息；Content 为字符串或内容片段数组
// WireMessage is one outbound message. Content is either a plain string
// or an ordered []chat.ContentPart.
type WireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Request 聊天补全请求体
// Request is the chat completion request body.
type Request struct {
	Model       string         `json:"model"`
	Messages    []WireMessage  `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Reply 非流式响应的标准化结果
// Reply is a normalized non-streaming response.
type Reply struct {
	Content string
	Role    string
	Model   string
}

// StreamChunk 单个流式增量
// StreamChunk is one incremental piece of a streamed reply.
type StreamChunk struct {
	Content string
	Done    bool
}

// Adapter 在内部消息与特定后端方言之间转换
// Adapter translates between the internal transcript and one backend dialect.
type Adapter interface {
	// Kind 返回适配器名称 / Kind returns the registry name.
	Kind() string

	// FormatRequest 构造请求体；带图片的消息渲染为文本+图片片段
	// FormatRequest builds the request body. Messages with images are
	// rendered as a text part followed by one image part per image.
	FormatRequest(messages []chat.Message, modelID string, opts Options) (Request, error)

	// ParseResponse 解析完整响应，结构缺失时返回 ErrMalformedResponse
	// ParseResponse decodes a complete response or fails with ErrMalformedResponse.
	ParseResponse(body []byte) (Reply, error)

	// ParseStreamChunk 解析单个 SSE data 负载
	// ParseStreamChunk decodes one SSE data payload. It returns (nil, nil)
	// when the payload carries no content and (nil, err) when it cannot be
	// parsed; callers log the error and keep reading. The terminator
	// sentinel yields a chunk with Done set.
	ParseStreamChunk(payload string) (*StreamChunk, error)
}

// Adapter kinds shipped by default.
const (
	KindOpenAI    = "openai"
	KindWong      = "wong"
	KindAnyRouter = "anyrouter"
)

// DoneSentinel terminates an SSE completion stream.
const DoneSentinel = "[DONE]"

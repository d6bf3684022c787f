package provider

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gravchat/internal/chat"
)

func TestFormatRequest_ImagesBecomeParts(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "plain"},
		{Role: chat.RoleUser, Content: "look", Images: []string{"data:a", "data:b"}},
	}
	req, err := GenericAdapter{}.FormatRequest(msgs, "gpt-4o", Options{})
	if err != nil {
		t.Fatalf("FormatRequest: %v", err)
	}
	if !req.Stream {
		t.Fatalf("Stream should default to true")
	}

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Model    string            `json:"model"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Model != "gpt-4o" || len(decoded.Messages) != 2 {
		t.Fatalf("decoded=%+v", decoded)
	}
	if got := string(decoded.Messages[0]); got != `{"role":"user","content":"plain"}` {
		t.Fatalf("plain message=%s", got)
	}
	want := `{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"data:a"}},{"type":"image_url","image_url":{"url":"data:b"}}]}`
	if got := string(decoded.Messages[1]); got != want {
		t.Fatalf("image message=%s\nwant %s", got, want)
	}
	if strings.Contains(string(body), "temperature") || strings.Contains(string(body), "metadata") {
		t.Fatalf("unset options leaked into body: %s", body)
	}
}

func TestFormatRequest_EmptyModel(t *testing.T) {
	if _, err := (GenericAdapter{}).FormatRequest(nil, " ", Options{}); err == nil {
		t.Fatalf("expected error for empty model")
	}
}

func TestVariants_OverrideOnlyTheirFields(t *testing.T) {
	temp, topP := 0.2, 0.9
	opts := Options{Temperature: &temp, TopP: &topP, Metadata: map[string]any{"model_ratio": 2}}
	msgs := []chat.Message{{Role: chat.RoleUser, Content: "hi"}}

	generic, _ := GenericAdapter{}.FormatRequest(msgs, "m", opts)
	if generic.TopP == nil || generic.Metadata != nil {
		t.Fatalf("generic=%+v", generic)
	}

	wong, _ := WongAdapter{}.FormatRequest(msgs, "m", opts)
	if wong.TopP != nil || wong.Temperature == nil || *wong.Temperature != temp {
		t.Fatalf("wong=%+v", wong)
	}

	anyrouter, _ := AnyRouterAdapter{}.FormatRequest(msgs, "m", opts)
	if anyrouter.Metadata["model_ratio"] != 2 || anyrouter.TopP == nil {
		t.Fatalf("anyrouter=%+v", anyrouter)
	}
}

func TestParseResponse(t *testing.T) {
	reply, err := GenericAdapter{}.ParseResponse([]byte(`{"model":"m1","choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if reply.Content != "hello" || reply.Role != "assistant" || reply.Model != "m1" {
		t.Fatalf("reply=%+v", reply)
	}

	for _, body := range []string{`{"choices":[]}`, `{"model":"m"}`, `not json`, `{"choices":[{}]}`} {
		if _, err := (GenericAdapter{}).ParseResponse([]byte(body)); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("ParseResponse(%s) err=%v, want ErrMalformedResponse", body, err)
		}
	}
}

func TestParseStreamChunk(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *StreamChunk
		wantErr bool
	}{
		{name: "sentinel", payload: "[DONE]", want: &StreamChunk{Done: true}},
		{name: "empty", payload: "  ", want: &StreamChunk{Done: true}},
		{name: "delta", payload: `{"choices":[{"delta":{"content":"Hi"}}]}`, want: &StreamChunk{Content: "Hi"}},
		{name: "finish", payload: `{"choices":[{"delta":{"content":"!"},"finish_reason":"stop"}]}`, want: &StreamChunk{Content: "!", Done: true}},
		{name: "role only", payload: `{"choices":[{"delta":{"role":"assistant"}}]}`},
		{name: "no choices", payload: `{"id":"x","choices":[]}`},
		{name: "typed parts", payload: `{"choices":[{"delta":{"content":[{"type":"text","text":"a"},{"type":"reasoning","text":"x"}]}}]}`, want: &StreamChunk{Content: "a"}},
		{name: "truncated root", payload: `{"choices":[{"delta":{"content":"cut"}}]`, want: &StreamChunk{Content: "cut"}},
		{name: "garbage", payload: `not-json`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GenericAdapter{}.ParseStreamChunk(tc.payload)
			if tc.wantErr {
				if err == nil || got != nil {
					t.Fatalf("got=%+v err=%v, want nil chunk and error", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != (tc.want == nil) || (got != nil && *got != *tc.want) {
				t.Fatalf("got=%+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseStreamChunk_ConcatenatesInOrder(t *testing.T) {
	payloads := []string{
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"Hi"}}]}`,
		`broken{`,
		`{"choices":[{"delta":{"content":" there"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	}
	var b strings.Builder
	for _, p := range payloads {
		chunk, _ := GenericAdapter{}.ParseStreamChunk(p)
		if chunk != nil {
			b.WriteString(chunk.Content)
		}
	}
	if b.String() != "Hi there" {
		t.Fatalf("content=%q, want %q", b.String(), "Hi there")
	}
}

type noTerminatorAdapter struct{ GenericAdapter }

func (noTerminatorAdapter) ParseStreamChunk(string) (*StreamChunk, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	if got := r.Get("wong").Kind(); got != KindWong {
		t.Fatalf("Get(wong)=%s", got)
	}
	if got := r.Get("AnyRouter").Kind(); got != KindAnyRouter {
		t.Fatalf("Get(AnyRouter)=%s", got)
	}
	if got := r.Get("mystery").Kind(); got != KindOpenAI {
		t.Fatalf("Get(mystery)=%s, want fallback", got)
	}

	if err := r.Register("", GenericAdapter{}); err == nil {
		t.Fatalf("Register with empty kind should fail")
	}
	if err := r.Register("x", nil); err == nil {
		t.Fatalf("Register nil should fail")
	}
	if err := r.Register("bad", noTerminatorAdapter{}); err == nil {
		t.Fatalf("Register without terminator handling should fail")
	}
	if err := r.Register("custom", WongAdapter{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	kinds := strings.Join(r.Kinds(), ",")
	if kinds != "anyrouter,custom,openai,wong" {
		t.Fatalf("Kinds=%s", kinds)
	}
}

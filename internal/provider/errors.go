package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is returned when a response lacks the choice/message shape.
var ErrMalformedResponse = errors.New("malformed response")

// ProviderError 非 2xx 响应 / ProviderError is a non-2xx completion or catalog response.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// DecodeError 从错误响应体中提取可读信息：error.message、message，否则原文
// DecodeError extracts a readable message from an error body: the nested
// error.message field, then a top-level message, then the raw text.
func DecodeError(status int, body []byte) *ProviderError {
	msg := ""
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
				msg = strings.TrimSpace(r.Str)
				break
			}
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "request failed"
	}
	return &ProviderError{StatusCode: status, Message: msg}
}

package engine

import (
	"gravchat/internal/chat"
	"gravchat/internal/provider"
)

// selectContext picks the messages sent with a turn. history must not
// include the in-flight placeholder. Image-generation models and a
// disabled context toggle only see the latest user message; otherwise the
// whole transcript goes out minus error-flagged messages.
func selectContext(history []chat.Message, modelID string, contextEnabled bool) []chat.Message {
	if provider.IsImageModel(modelID) || !contextEnabled {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == chat.RoleUser && !history[i].Error {
				return []chat.Message{history[i]}
			}
		}
		return nil
	}
	out := make([]chat.Message, 0, len(history))
	for _, m := range history {
		if m.Error || m.Streaming {
			continue
		}
		out = append(out, m)
	}
	return out
}

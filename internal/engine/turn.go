package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gravchat/internal/chat"
	"gravchat/internal/contextmgr"
	"gravchat/internal/groups"
	"gravchat/internal/provider"

	"go.uber.org/zap"
)

const readBufferSize = 4096

type turnSpec struct {
	content     string
	images      []string
	resend      bool
	resendIndex int // -1 keeps the transcript as is
}

// turn is the state of one in-flight request. session may be removed from
// the engine while streaming; writes to it stay valid but are no longer
// persisted.
type turn struct {
	session *chat.Session
	index   int
	target  groups.Target
	context []chat.Message
	tokens  int
}

func (e *Engine) run(ctx context.Context, spec turnSpec) (TurnResult, error) {
	if !spec.resend && strings.TrimSpace(spec.content) == "" && len(spec.images) == 0 {
		return TurnResult{}, ErrEmptyTurn
	}
	target, err := e.models.ActiveTarget()
	if err != nil {
		return TurnResult{}, err
	}

	t, err := e.begin(spec, target)
	if err != nil {
		return TurnResult{}, err
	}
	id := t.session.ID

	e.publish(Event{Kind: EventTranscriptChanged, SessionID: id, Index: t.index}, true)
	e.publish(Event{Kind: EventTurnState, SessionID: id, State: StateStreaming}, false)

	err = e.stream(ctx, t)
	return e.finish(t, err)
}

// begin claims the session for a turn and appends the user message and the
// assistant placeholder in one critical section.
func (e *Engine) begin(spec turnSpec, target groups.Target) (*turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.find(e.current)
	if s == nil {
		if spec.resend {
			return nil, ErrNoSession
		}
		s = e.newSessionLocked()
	}
	if e.turns[s.ID].Active() {
		return nil, ErrTurnInProgress
	}
	if spec.resendIndex >= 0 {
		if _, err := e.editableLocked(spec.resendIndex); err != nil {
			return nil, err
		}
		n := spec.resendIndex + 1
		s.Messages = s.Messages[:n:n]
	}
	if spec.resend && (len(s.Messages) == 0 || s.Messages[len(s.Messages)-1].Role != chat.RoleUser) {
		return nil, ErrNotUserMessage
	}

	now := e.now().UTC()
	if !spec.resend {
		if len(s.Messages) == 0 && s.Title == "" {
			s.Title = e.title(spec.content, spec.images)
		}
		s.Messages = append(s.Messages, chat.Message{
			Role:      chat.RoleUser,
			Content:   spec.content,
			Images:    append([]string(nil), spec.images...),
			Timestamp: now,
		})
	}
	s.ProviderModelID = target.ModelID
	e.turns[s.ID] = StateSending

	history := selectContext(s.Messages, target.ModelID, e.prefs.ContextEnabled())
	history = cloneMessages(history)
	tokens := 0
	if e.tokens != nil {
		history, tokens = contextmgr.TrimToBudget(history, e.tokens, e.cfg.ContextBudget)
	}

	s.Messages = append(s.Messages, chat.Message{
		Role:      chat.RoleAssistant,
		Timestamp: now,
		Streaming: true,
	})
	e.turns[s.ID] = StateStreaming
	return &turn{
		session: s,
		index:   len(s.Messages) - 1,
		target:  target,
		context: history,
		tokens:  tokens,
	}, nil
}

// stream issues the request and appends every delta to the placeholder.
func (e *Engine) stream(ctx context.Context, t *turn) error {
	adapter := e.adapters.Get(t.target.Group.AdapterKind)
	req, err := adapter.FormatRequest(t.context, t.target.ModelID, e.cfg.Options)
	if err != nil {
		return fmt.Errorf("format request: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := t.target.Group.Endpoint
	path := strings.TrimSpace(endpoint.Path)
	if path == "" {
		path = e.cfg.EndpointPath
	}
	url := strings.TrimRight(strings.TrimSpace(endpoint.BaseURL), "/") + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if endpoint.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+endpoint.Credential)
	}

	e.logger.Debug("sending turn",
		zap.String("session", t.session.ID),
		zap.String("group", t.target.Group.ID),
		zap.String("model", t.target.ModelID),
		zap.Int("messages", len(t.context)),
		zap.Int("context_tokens", t.tokens),
	)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return &provider.ProviderError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return provider.DecodeError(resp.StatusCode, data)
	}

	stream := io.Reader(resp.Body)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/event-stream") {
		br := bufio.NewReader(resp.Body)
		isJSON, err := sniffJSON(br)
		if err != nil {
			return fmt.Errorf("read chat response: %w", err)
		}
		if isJSON {
			data, err := io.ReadAll(br)
			if err != nil {
				return fmt.Errorf("read chat response: %w", err)
			}
			reply, err := adapter.ParseResponse(data)
			if err != nil {
				return err
			}
			e.appendDelta(t, reply.Content)
			return nil
		}
		stream = br
	}
	if err := e.consume(stream, adapter, t); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("read stream response: %w", ctxErr)
		}
		return err
	}
	return nil
}

// consume reads the event stream to EOF. The terminator and chunks without
// content are skipped; unparsable chunks are logged and skipped. A Done
// chunk still contributes its content.
func (e *Engine) consume(body io.Reader, adapter provider.Adapter, t *turn) error {
	var (
		frames FrameReader
		buf    = make([]byte, readBufferSize)
	)
	handle := func(payloads []string) {
		for _, payload := range payloads {
			if payload == provider.DoneSentinel {
				continue
			}
			chunk, err := adapter.ParseStreamChunk(payload)
			if err != nil {
				e.logger.Debug("skip stream chunk", zap.String("session", t.session.ID), zap.Error(err))
				continue
			}
			if chunk == nil {
				continue
			}
			e.appendDelta(t, chunk.Content)
		}
	}
	for {
		n, err := body.Read(buf)
		if n > 0 {
			handle(frames.Feed(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			handle(frames.Flush())
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream response: %w", err)
		}
	}
}

// sniffJSON skips leading whitespace and reports whether the body is a
// single JSON document rather than event-stream frames served under another
// content type. An empty body is treated as a stream.
func sniffJSON(br *bufio.Reader) (bool, error) {
	for {
		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b == '{', br.UnreadByte()
	}
}

func (e *Engine) appendDelta(t *turn, delta string) {
	if delta == "" {
		return
	}
	e.mu.Lock()
	t.session.Messages[t.index].Content += delta
	e.mu.Unlock()
	e.publish(Event{Kind: EventDelta, SessionID: t.session.ID, Index: t.index, Delta: delta}, true)
}

// finish settles the placeholder: an empty reply becomes a notice and a
// failure is annotated. Both are flagged as errors.
func (e *Engine) finish(t *turn, err error) (TurnResult, error) {
	e.mu.Lock()
	msg := &t.session.Messages[t.index]
	if err == nil && msg.Content == "" {
		msg.Content = e.msgs.T("chat.empty_response")
		msg.Error = true
		err = ErrEmptyResponse
	} else if err != nil {
		msg.Content += e.msgs.T("chat.error_annotation", e.describe(err))
		msg.Error = true
	}
	msg.Streaming = false
	state := StateCompleted
	if err != nil {
		state = StateFailed
	}
	delete(e.turns, t.session.ID)
	result := TurnResult{
		SessionID:     t.session.ID,
		Index:         t.index,
		Message:       *msg,
		State:         state,
		ModelID:       t.target.ModelID,
		ContextTokens: t.tokens,
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("turn failed", zap.String("session", t.session.ID), zap.String("model", t.target.ModelID), zap.Error(err))
	} else {
		e.logger.Info("turn completed",
			zap.String("session", t.session.ID),
			zap.String("model", t.target.ModelID),
			zap.Int("chars", len(result.Message.Content)),
		)
	}
	e.publish(Event{Kind: EventTranscriptChanged, SessionID: t.session.ID, Index: t.index}, true)
	e.publish(Event{Kind: EventTurnState, SessionID: t.session.ID, State: state, Err: err}, false)
	return result, err
}

func (e *Engine) describe(err error) string {
	var perr *provider.ProviderError
	switch {
	case errors.As(err, &perr):
		return perr.Message
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return e.msgs.T("chat.interrupted")
	default:
		return err.Error()
	}
}

func cloneMessages(msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		m.Images = append([]string(nil), m.Images...)
		out[i] = m
	}
	return out
}

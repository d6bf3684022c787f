// Package engine drives chat turns: it owns the in-memory transcripts,
// streams replies from the active provider and writes sessions back
// through a debounced history flush.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gravchat/internal/chat"
	"gravchat/internal/contextmgr"
	"gravchat/internal/debounce"
	"gravchat/internal/groups"
	"gravchat/internal/i18n"
	"gravchat/internal/logging"
	"gravchat/internal/provider"
	"gravchat/internal/storage"

	"go.uber.org/zap"
)

// HistoryKey is the scheduler key for transcript writes.
const HistoryKey = "history"

// Defaults.
const (
	DefaultEndpointPath  = "/v1/chat/completions"
	DefaultHistoryDelay  = time.Second
	DefaultTitleMaxRunes = 30
)

var (
	// ErrTurnInProgress is returned when the session already has a turn in flight.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
	// ErrEmptyTurn is returned for a turn with neither text nor images.
	ErrEmptyTurn = errors.New("turn has no content")
	// ErrNotUserMessage is returned when resend or edit targets a non-user message.
	ErrNotUserMessage = errors.New("message is not a user message")
	// ErrNoSession is returned when no session is selected.
	ErrNoSession = errors.New("no session selected")
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptyResponse marks a stream that ended without content.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// Store is the session persistence the engine writes through.
type Store interface {
	ListSessions(ctx context.Context) ([]chat.Session, error)
	PutSession(ctx context.Context, session chat.Session) error
	DeleteSession(ctx context.Context, id string) error
	ClearSessions(ctx context.Context) error
	DeleteChatsBeforeDate(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Models resolves the provider and model a turn is sent to.
type Models interface {
	ActiveTarget() (groups.Target, error)
	SelectModel(modelID string) error
}

// Preferences are the scalar settings the engine reads.
type Preferences interface {
	ContextEnabled() bool
	RetentionDays() int
	ActiveModelID() string
	Set(key string, value any) error
}

// Adapters looks up the adapter for a group's adapter kind.
type Adapters interface {
	Get(kind string) provider.Adapter
}

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	EndpointPath  string
	HistoryDelay  time.Duration
	TitleMaxRunes int
	// ContextBudget caps outbound context tokens; 0 disables trimming.
	ContextBudget int
	Options       provider.Options
}

// Deps are the collaborators of an Engine. Scheduler, HTTPClient, Tokens
// and Messages are optional.
type Deps struct {
	Store       Store
	Models      Models
	Adapters    Adapters
	Preferences Preferences
	Scheduler   *debounce.Scheduler
	HTTPClient  *http.Client
	Tokens      contextmgr.Counter
	Messages    *i18n.Messages
	Logger      *zap.Logger
}

// Draft is the content handed back by EditTurn.
type Draft struct {
	Content string
	Images  []string
}

// TurnResult describes a finished turn.
type TurnResult struct {
	SessionID     string
	Index         int
	Message       chat.Message
	State         State
	ModelID       string
	ContextTokens int
}

// Engine owns the session list and runs turns against it.
type Engine struct {
	store    Store
	models   Models
	adapters Adapters
	prefs    Preferences
	sched    *debounce.Scheduler
	client   *http.Client
	tokens   contextmgr.Counter
	msgs     *i18n.Messages
	logger   *zap.Logger
	cfg      Config

	mu       sync.Mutex
	sessions []*chat.Session // newest first
	current  string
	turns    map[string]State
	dirty    map[string]struct{}

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int

	now func() time.Time
}

// New returns an engine with an empty session list. Call Load to read
// persisted sessions.
func New(deps Deps, cfg Config) *Engine {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = DefaultEndpointPath
	}
	if cfg.HistoryDelay <= 0 {
		cfg.HistoryDelay = DefaultHistoryDelay
	}
	if cfg.TitleMaxRunes <= 0 {
		cfg.TitleMaxRunes = DefaultTitleMaxRunes
	}
	client := deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	msgs := deps.Messages
	if msgs == nil {
		msgs = i18n.New("")
	}
	return &Engine{
		store:    deps.Store,
		models:   deps.Models,
		adapters: deps.Adapters,
		prefs:    deps.Preferences,
		sched:    deps.Scheduler,
		client:   client,
		tokens:   deps.Tokens,
		msgs:     msgs,
		logger:   logging.OrNop(deps.Logger).Named("engine"),
		cfg:      cfg,
		turns:    make(map[string]State),
		dirty:    make(map[string]struct{}),
		subs:     make(map[int]func(Event)),
		now:      time.Now,
	}
}

// Load reads persisted sessions and applies retention. A store failure is
// returned but leaves the engine usable in memory.
func (e *Engine) Load(ctx context.Context) error {
	stored, err := e.store.ListSessions(ctx)
	if err != nil {
		e.logger.Warn("load sessions failed", zap.Error(err))
		return err
	}
	e.mu.Lock()
	known := make(map[string]bool, len(e.sessions))
	for _, s := range e.sessions {
		known[s.ID] = true
	}
	for i := range stored {
		s := stored[i]
		if known[s.ID] {
			continue
		}
		if e.clearStale(&s) {
			e.dirty[s.ID] = struct{}{}
		}
		e.sessions = append(e.sessions, &s)
	}
	sortNewestFirst(e.sessions)
	e.mu.Unlock()

	e.logger.Info("sessions loaded", zap.Int("count", len(stored)))
	e.publish(Event{Kind: EventSessionsChanged}, true)
	_, err = e.ApplyRetention(ctx)
	return err
}

// clearStale ends messages left streaming by a previous process.
func (e *Engine) clearStale(s *chat.Session) bool {
	changed := false
	for i := range s.Messages {
		m := &s.Messages[i]
		if !m.Streaming {
			continue
		}
		m.Streaming = false
		if m.Content == "" {
			m.Content = e.msgs.T("chat.interrupted")
			m.Error = true
		}
		changed = true
	}
	return changed
}

// Sessions returns copies of all sessions, newest first.
func (e *Engine) Sessions() []chat.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chat.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, copySession(s))
	}
	return out
}

// Session returns a copy of the session with id.
func (e *Engine) Session(id string) (chat.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.find(id)
	if s == nil {
		return chat.Session{}, false
	}
	return copySession(s), true
}

// Current returns a copy of the selected session.
func (e *Engine) Current() (chat.Session, bool) {
	e.mu.Lock()
	id := e.current
	e.mu.Unlock()
	if id == "" {
		return chat.Session{}, false
	}
	return e.Session(id)
}

// State returns the turn state of a session.
func (e *Engine) State(id string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.turns[id]; ok {
		return st
	}
	return StateIdle
}

// Busy reports whether a turn is in flight for the session.
func (e *Engine) Busy(id string) bool {
	return e.State(id).Active()
}

// NewSession creates an empty session and selects it.
func (e *Engine) NewSession() string {
	e.mu.Lock()
	s := e.newSessionLocked()
	e.mu.Unlock()
	e.publish(Event{Kind: EventSessionsChanged, SessionID: s.ID}, true)
	return s.ID
}

func (e *Engine) newSessionLocked() *chat.Session {
	s := &chat.Session{
		ID:              storage.NewSessionID(),
		Messages:        []chat.Message{},
		ProviderModelID: e.prefs.ActiveModelID(),
		CreatedAt:       e.now().UTC(),
	}
	e.sessions = append([]*chat.Session{s}, e.sessions...)
	e.current = s.ID
	e.dirty[s.ID] = struct{}{}
	return s
}

// SelectSession makes id the current session and restores the model it
// was last used with.
func (e *Engine) SelectSession(id string) error {
	e.mu.Lock()
	s := e.find(id)
	if s == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.current = id
	modelID := s.ProviderModelID
	e.mu.Unlock()

	if modelID != "" && e.models != nil {
		if err := e.models.SelectModel(modelID); err != nil {
			e.logger.Warn("restore session model failed", zap.String("session", id), zap.String("model", modelID), zap.Error(err))
		}
	}
	e.publish(Event{Kind: EventSessionsChanged, SessionID: id}, false)
	return nil
}

// DeleteSession removes a session from memory and the store. A turn still
// streaming into it finishes without writing it back.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	e.mu.Lock()
	if !e.remove(id) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.mu.Unlock()

	e.publish(Event{Kind: EventSessionsChanged, SessionID: id}, false)
	if err := e.store.DeleteSession(ctx, id); err != nil {
		e.logger.Warn("delete session failed", zap.String("session", id), zap.Error(err))
		return err
	}
	return nil
}

// ClearHistory drops every session.
func (e *Engine) ClearHistory(ctx context.Context) error {
	e.mu.Lock()
	e.sessions = nil
	e.current = ""
	e.dirty = make(map[string]struct{})
	e.mu.Unlock()

	if e.sched != nil {
		e.sched.Cancel(HistoryKey)
	}
	e.publish(Event{Kind: EventSessionsChanged}, false)
	if err := e.store.ClearSessions(ctx); err != nil {
		e.logger.Warn("clear sessions failed", zap.Error(err))
		return err
	}
	return nil
}

// ApplyRetention deletes sessions created before the retention window and
// returns their ids.
func (e *Engine) ApplyRetention(ctx context.Context) ([]string, error) {
	days := e.prefs.RetentionDays()
	cutoff := e.now().Add(-time.Duration(days) * 24 * time.Hour)

	removed, storeErr := e.store.DeleteChatsBeforeDate(ctx, cutoff)
	if storeErr != nil {
		e.logger.Warn("retention delete failed", zap.Error(storeErr))
	}
	gone := make(map[string]bool, len(removed))
	for _, id := range removed {
		gone[id] = true
	}

	e.mu.Lock()
	kept := e.sessions[:0]
	for _, s := range e.sessions {
		if gone[s.ID] || s.CreatedAt.Before(cutoff) {
			if !gone[s.ID] {
				removed = append(removed, s.ID)
			}
			delete(e.dirty, s.ID)
			if e.current == s.ID {
				e.current = ""
			}
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(e.sessions); i++ {
		e.sessions[i] = nil
	}
	e.sessions = kept
	e.mu.Unlock()

	if len(removed) > 0 {
		e.publish(Event{Kind: EventSessionsChanged}, false)
	}
	return removed, storeErr
}

// UpdateRetention stores a new retention window and applies it at once.
func (e *Engine) UpdateRetention(ctx context.Context, days int) ([]string, error) {
	if days < 1 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if err := e.prefs.Set(chat.SettingRetentionDays, days); err != nil {
		return nil, err
	}
	return e.ApplyRetention(ctx)
}

// EditTurn truncates the current transcript before the user message at
// index and returns its content as a draft.
func (e *Engine) EditTurn(index int) (Draft, error) {
	e.mu.Lock()
	s, err := e.editableLocked(index)
	if err != nil {
		e.mu.Unlock()
		return Draft{}, err
	}
	msg := s.Messages[index]
	s.Messages = s.Messages[:index:index]
	id := s.ID
	e.mu.Unlock()

	e.publish(Event{Kind: EventTranscriptChanged, SessionID: id, Index: index}, true)
	return Draft{Content: msg.Content, Images: append([]string(nil), msg.Images...)}, nil
}

// ResendTurn truncates the current transcript after the user message at
// index and sends it again.
func (e *Engine) ResendTurn(ctx context.Context, index int) (TurnResult, error) {
	return e.run(ctx, turnSpec{resend: true, resendIndex: index})
}

// SendTurn sends one user turn on the current session, creating a session
// when none is selected. With isResend the transcript is sent as it is,
// without appending a new user message.
func (e *Engine) SendTurn(ctx context.Context, content string, images []string, isResend bool) (TurnResult, error) {
	return e.run(ctx, turnSpec{content: content, images: images, resend: isResend, resendIndex: -1})
}

func (e *Engine) editableLocked(index int) (*chat.Session, error) {
	s := e.find(e.current)
	if s == nil {
		return nil, ErrNoSession
	}
	if e.turns[s.ID].Active() {
		return nil, ErrTurnInProgress
	}
	if index < 0 || index >= len(s.Messages) {
		return nil, fmt.Errorf("message index %d out of range", index)
	}
	if s.Messages[index].Role != chat.RoleUser {
		return nil, ErrNotUserMessage
	}
	return s, nil
}

// Flush writes pending transcript changes now.
func (e *Engine) Flush() {
	if e.sched == nil || !e.sched.Flush(HistoryKey) {
		e.writeHistory()
	}
}

// Close flushes pending writes.
func (e *Engine) Close() {
	e.Flush()
}

// publish notifies subscribers; when persist is set it also marks the
// session dirty and schedules the debounced history write.
func (e *Engine) publish(ev Event, persist bool) {
	if persist {
		if ev.SessionID != "" {
			e.mu.Lock()
			if e.find(ev.SessionID) != nil {
				e.dirty[ev.SessionID] = struct{}{}
			}
			e.mu.Unlock()
		}
		e.scheduleHistory()
	}
	e.subMu.RLock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (e *Engine) scheduleHistory() {
	if e.sched == nil {
		e.writeHistory()
		return
	}
	e.sched.Schedule(HistoryKey, e.cfg.HistoryDelay, e.writeHistory)
}

// writeHistory persists a snapshot of every dirty session still present.
func (e *Engine) writeHistory() {
	e.mu.Lock()
	snapshots := make([]chat.Session, 0, len(e.dirty))
	for id := range e.dirty {
		s := e.find(id)
		delete(e.dirty, id)
		if s == nil {
			continue
		}
		snap, err := chat.CloneSession(*s)
		if err != nil {
			e.logger.Warn("snapshot session failed", zap.String("session", id), zap.Error(err))
			continue
		}
		snapshots = append(snapshots, snap)
	}
	e.mu.Unlock()

	ctx := context.Background()
	for _, snap := range snapshots {
		if err := e.store.PutSession(ctx, snap); err != nil {
			e.logger.Warn("write session failed", zap.String("session", snap.ID), zap.Error(err))
			e.mu.Lock()
			if e.find(snap.ID) != nil {
				e.dirty[snap.ID] = struct{}{}
			}
			e.mu.Unlock()
		}
	}
}

func (e *Engine) find(id string) *chat.Session {
	if id == "" {
		return nil
	}
	for _, s := range e.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (e *Engine) remove(id string) bool {
	for i, s := range e.sessions {
		if s.ID != id {
			continue
		}
		e.sessions = append(e.sessions[:i], e.sessions[i+1:]...)
		delete(e.dirty, id)
		if e.current == id {
			e.current = ""
		}
		return true
	}
	return false
}

func (e *Engine) title(content string, images []string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		if len(images) > 0 {
			return e.msgs.T("chat.title.image")
		}
		return e.msgs.T("chat.title.new")
	}
	if utf8.RuneCountInString(content) <= e.cfg.TitleMaxRunes {
		return content
	}
	return string([]rune(content)[:e.cfg.TitleMaxRunes])
}

func copySession(s *chat.Session) chat.Session {
	out := *s
	out.Messages = make([]chat.Message, len(s.Messages))
	for i, m := range s.Messages {
		m.Images = append([]string(nil), m.Images...)
		out.Messages[i] = m
	}
	return out
}

func sortNewestFirst(sessions []*chat.Session) {
	slices.SortStableFunc(sessions, func(a, b *chat.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

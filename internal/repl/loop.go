// Package repl is the interactive chat loop of the command line client.
package repl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gravchat/internal/chat"
	"gravchat/internal/engine"
	"gravchat/internal/groups"
	"gravchat/internal/i18n"
	"gravchat/internal/logging"
	"gravchat/internal/render"

	"go.uber.org/zap"
)

// Engine is the part of the session engine the loop drives.
type Engine interface {
	Sessions() []chat.Session
	Current() (chat.Session, bool)
	NewSession() string
	SelectSession(id string) error
	DeleteSession(ctx context.Context, id string) error
	SendTurn(ctx context.Context, content string, images []string, isResend bool) (engine.TurnResult, error)
	ResendTurn(ctx context.Context, index int) (engine.TurnResult, error)
	EditTurn(index int) (engine.Draft, error)
	UpdateRetention(ctx context.Context, days int) ([]string, error)
	Subscribe(fn func(engine.Event)) func()
}

// Models selects the active model.
type Models interface {
	SelectModel(modelID string) error
	ResolveModel(modelID string) (chat.ProviderGroup, bool)
}

// Preferences are the scalar settings the loop reads and toggles.
type Preferences interface {
	ContextEnabled() bool
	CodeTheme() string
	Set(key string, value any) error
}

// Options configure output.
type Options struct {
	Width    int
	Markdown bool
	Theme    render.Theme
	// Interruptible cancels a streaming turn on SIGINT.
	Interruptible bool
}

// Loop holds REPL state: the engine, the pending draft and attachments.
type Loop struct {
	engine Engine
	models Models
	prefs  Preferences
	msgs   *i18n.Messages
	logger *zap.Logger
	in     LineInput
	out    io.Writer
	opts   Options

	draft  string
	images []string
	blocks []chat.TextBlock

	mu       sync.Mutex
	streamID string
	streamed strings.Builder
}

// New builds a loop reading from in and writing to out.
func New(eng Engine, models Models, prefs Preferences, msgs *i18n.Messages, in LineInput, out io.Writer, opts Options, logger *zap.Logger) *Loop {
	if msgs == nil {
		msgs = i18n.New("")
	}
	return &Loop{
		engine: eng,
		models: models,
		prefs:  prefs,
		msgs:   msgs,
		logger: logging.OrNop(logger).Named("repl"),
		in:     in,
		out:    out,
		opts:   opts,

		streamID: "-",
	}
}

// Run reads lines until EOF or /quit.
func (l *Loop) Run(ctx context.Context) error {
	unsubscribe := l.engine.Subscribe(l.onEvent)
	defer unsubscribe()

	l.println(l.opts.Theme.TitleStyle.Render(l.msgs.T("repl.welcome")))
	for {
		var (
			line string
			err  error
		)
		if l.draft != "" {
			line, err = l.in.ReadLineWithDefault(l.msgs.T("repl.prompt"), l.draft)
			l.draft = ""
		} else {
			line, err = l.in.ReadLine(l.msgs.T("repl.prompt"))
		}
		if isInterrupt(err) {
			continue
		}
		if errors.Is(err, io.EOF) {
			l.println(l.msgs.T("repl.bye"))
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := l.Handle(ctx, line)
		if err != nil {
			l.printError(err)
		}
		if quit {
			l.println(l.msgs.T("repl.bye"))
			return nil
		}
	}
}

// Handle runs one line of input: a slash command or a message.
func (l *Loop) Handle(ctx context.Context, line string) (quit bool, err error) {
	text := strings.TrimSpace(line)
	if text == "" {
		return false, nil
	}
	if !strings.HasPrefix(text, "/") {
		return false, l.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		l.println(l.msgs.T("repl.help"))
	case "/new":
		l.engine.NewSession()
		l.clearPending()
		l.println(l.msgs.T("repl.new"))
	case "/list":
		l.list()
	case "/show":
		l.show()
	case "/open":
		if arg == "" {
			return false, l.usage("/open <id>")
		}
		if err := l.engine.SelectSession(arg); err != nil {
			return false, err
		}
		s, _ := l.engine.Current()
		l.println(l.msgs.T("repl.opened", s.ID, l.titleOf(s)))
		l.show()
	case "/delete":
		if arg == "" {
			return false, l.usage("/delete <id>")
		}
		if err := l.engine.DeleteSession(ctx, arg); err != nil {
			return false, err
		}
		l.println(l.msgs.T("repl.deleted", arg))
	case "/resend":
		index, err := l.messageIndex(arg, "/resend <n>")
		if err != nil {
			return false, err
		}
		return false, l.stream(ctx, func(ctx context.Context) (engine.TurnResult, error) {
			return l.engine.ResendTurn(ctx, index)
		})
	case "/edit":
		index, err := l.messageIndex(arg, "/edit <n>")
		if err != nil {
			return false, err
		}
		draft, err := l.engine.EditTurn(index)
		if err != nil {
			return false, err
		}
		l.draft = draft.Content
		l.images = append(l.images, draft.Images...)
		l.println(l.opts.Theme.MutedStyle.Render(l.msgs.T("repl.draft", draft.Content)))
	case "/attach":
		if arg == "" {
			return false, l.usage("/attach <file>")
		}
		return false, l.attach(arg)
	case "/model":
		if arg == "" {
			return false, l.usage("/model <id>")
		}
		if err := l.models.SelectModel(arg); err != nil {
			return false, err
		}
		g, _ := l.models.ResolveModel(arg)
		l.println(l.msgs.T("repl.model_set", arg, g.Name))
	case "/context":
		var enabled bool
		switch strings.ToLower(arg) {
		case "on":
			enabled = true
		case "off":
		default:
			return false, l.usage("/context on|off")
		}
		if err := l.prefs.Set(chat.SettingContextEnabled, enabled); err != nil {
			return false, err
		}
		if enabled {
			l.println(l.msgs.T("repl.context_on"))
		} else {
			l.println(l.msgs.T("repl.context_off"))
		}
	case "/retention":
		days, err := strconv.Atoi(arg)
		if err != nil {
			return false, l.usage("/retention <days>")
		}
		removed, err := l.engine.UpdateRetention(ctx, days)
		if err != nil {
			return false, err
		}
		l.println(l.msgs.T("repl.retention", days))
		if len(removed) > 0 {
			l.println(l.msgs.T("sessions.pruned", len(removed)))
		}
	default:
		l.println(l.opts.Theme.WarningStyle.Render(l.msgs.T("repl.unknown", cmd)))
	}
	return false, nil
}

func (l *Loop) send(ctx context.Context, content string) error {
	content = chat.AppendBlocks(content, l.blocks)
	images := l.images
	err := l.stream(ctx, func(ctx context.Context) (engine.TurnResult, error) {
		return l.engine.SendTurn(ctx, content, images, false)
	})
	if !errors.Is(err, engine.ErrEmptyTurn) && !errors.Is(err, engine.ErrTurnInProgress) && !errors.Is(err, groups.ErrNoActiveModel) {
		l.clearPending()
	}
	return err
}

// stream runs one turn, echoing deltas as they arrive, then prints the
// part of the final message that was not streamed (error annotations and
// the empty-response notice).
func (l *Loop) stream(ctx context.Context, run func(context.Context) (engine.TurnResult, error)) error {
	if l.opts.Interruptible {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	l.mu.Lock()
	l.streamID = ""
	l.streamed.Reset()
	l.mu.Unlock()

	result, err := run(ctx)

	l.mu.Lock()
	streamed := l.streamed.String()
	l.streamID = "-"
	l.mu.Unlock()

	if result.SessionID == "" {
		return err
	}
	if streamed == "" {
		l.println(l.opts.Theme.AssistantStyle.Render("assistant"))
	} else {
		l.println("")
	}
	tail := strings.TrimSpace(strings.TrimPrefix(result.Message.Content, streamed))
	switch {
	case tail == "":
	case result.Message.Error:
		l.println(l.opts.Theme.ErrorStyle.Render(tail))
	default:
		l.println(tail)
	}
	if result.ContextTokens > 0 {
		l.println(l.opts.Theme.MutedStyle.Render(l.msgs.T("chat.context_estimate", result.ContextTokens)))
	}
	if result.Message.Error {
		l.logger.Debug("turn ended with error", zap.String("session", result.SessionID), zap.Error(err))
		return nil
	}
	return err
}

// onEvent echoes deltas of the turn started by this loop. The first delta
// binds the stream to its session.
func (l *Loop) onEvent(ev engine.Event) {
	if ev.Kind != engine.EventDelta {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.streamID {
	case "-":
		return
	case "":
		l.streamID = ev.SessionID
		fmt.Fprintln(l.out, l.opts.Theme.AssistantStyle.Render("assistant"))
	default:
		if ev.SessionID != l.streamID {
			return
		}
	}
	l.streamed.WriteString(ev.Delta)
	fmt.Fprint(l.out, ev.Delta)
}

func (l *Loop) attach(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	name := filepath.Base(path)
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	if strings.HasPrefix(mediaType, "image/") {
		l.images = append(l.images, "data:"+mediaType+";base64,"+base64.StdEncoding.EncodeToString(data))
	} else {
		l.blocks = append(l.blocks, chat.TextBlock{Name: name, Text: string(data)})
	}
	l.println(l.opts.Theme.MutedStyle.Render(l.msgs.T("chat.attachment_header", name)))
	return nil
}

func (l *Loop) list() {
	sessions := l.engine.Sessions()
	if len(sessions) == 0 {
		l.println(l.msgs.T("sessions.empty"))
		return
	}
	current, _ := l.engine.Current()
	for _, s := range sessions {
		l.println(render.SessionLine(s, s.ID == current.ID, l.opts.Theme, l.msgs.T("chat.title.new")))
	}
}

func (l *Loop) show() {
	s, ok := l.engine.Current()
	if !ok || len(s.Messages) == 0 {
		return
	}
	opts := render.Options{Width: l.opts.Width, CodeTheme: l.prefs.CodeTheme(), Markdown: l.opts.Markdown}
	for i, m := range s.Messages {
		l.println(l.opts.Theme.MutedStyle.Render(fmt.Sprintf("#%d", i+1)))
		l.println(render.RenderMessage(m, l.opts.Theme, opts))
	}
}

// messageIndex parses a 1-based message number as shown by /show.
func (l *Loop) messageIndex(arg, usage string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, l.usage(usage)
	}
	return n - 1, nil
}

func (l *Loop) titleOf(s chat.Session) string {
	if strings.TrimSpace(s.Title) == "" {
		return l.msgs.T("chat.title.new")
	}
	return s.Title
}

func (l *Loop) clearPending() {
	l.draft = ""
	l.images = nil
	l.blocks = nil
}

func (l *Loop) usage(text string) error {
	return errors.New(l.msgs.T("repl.usage", text))
}

func (l *Loop) printError(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, engine.ErrTurnInProgress):
		msg = l.msgs.T("chat.turn_in_progress")
	case errors.Is(err, groups.ErrNoActiveModel):
		msg = l.msgs.T("chat.no_active_model")
	}
	l.println(l.opts.Theme.ErrorStyle.Render(msg))
}

func (l *Loop) println(s string) {
	fmt.Fprintln(l.out, s)
}

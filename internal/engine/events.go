package engine

// State is the lifecycle of one outbound turn.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether the state blocks another turn on the session.
func (s State) Active() bool {
	return s == StateSending || s == StateStreaming
}

// EventKind classifies engine notifications.
type EventKind int

const (
	// EventSessionsChanged: the session list or the selection changed.
	EventSessionsChanged EventKind = iota
	// EventTranscriptChanged: messages were appended or truncated.
	EventTranscriptChanged
	// EventDelta: streamed text was appended to the message at Index.
	EventDelta
	// EventTurnState: the turn on SessionID moved to State.
	EventTurnState
)

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind      EventKind
	SessionID string
	Index     int
	Delta     string
	State     State
	Err       error
}

// Subscribe registers fn for every event and returns a function that
// removes it. fn runs on the goroutine that caused the mutation and must
// not call back into the engine's mutating methods.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

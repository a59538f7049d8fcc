package chat

import (
	"sync"

	"github.com/MegaGrindStone/webchat/internal/transcript"
	"github.com/google/uuid"
)

// State is the position of an Exchange in the reply state machine.
//
//	Pending ──chunk──▶ Streaming ──done──▶ Done
//	   │                   │
//	   └──error──┬─────────┘
//	             ▼
//	      FallbackPending ──reply──▶ Done
//	             └────────failure──▶ FallbackFailed
type State int

// Exchange is one user turn: the message sent and the reply being received for it. Transitions are
// only made while the session lock is held, so the unexported fields need no further guarding. The
// state itself is also read by other goroutines and has its own lock.
type Exchange struct {
	ID     string
	ChatID string
	Text   string

	acc      string
	partial  *transcript.Partial
	signaled bool

	mu    sync.Mutex
	state State

	finished chan struct{}
}

const (
	// StatePending means the stream is open and no chunk arrived yet.
	StatePending State = iota
	// StateStreaming means at least one non-empty chunk arrived and is shown as a partial entry.
	StateStreaming
	// StateFallbackPending means streaming failed and the static endpoint was asked instead.
	StateFallbackPending
	// StateDone means the reply is shown in full.
	StateDone
	// StateFallbackFailed means the static endpoint failed too and an error is shown instead.
	StateFallbackFailed
)

var stateNames = map[State]string{
	StatePending:         "pending",
	StateStreaming:       "streaming",
	StateFallbackPending: "fallback_pending",
	StateDone:            "done",
	StateFallbackFailed:  "fallback_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFallbackFailed
}

func newExchange(chatID, text string) *Exchange {
	return &Exchange{
		ID:       uuid.New().String(),
		ChatID:   chatID,
		Text:     text,
		state:    StatePending,
		finished: make(chan struct{}),
	}
}

// State returns the current state.
func (x *Exchange) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.state
}

// Finished is closed once the exchange won't change anymore: it reached a terminal state, or its
// stream was superseded and it stays in the state it had.
func (x *Exchange) Finished() <-chan struct{} {
	return x.finished
}

func (x *Exchange) setState(s State) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.state = s
}

// chunk accumulates a fragment of the reply and shows everything received so far. Empty fragments
// are ignored, they don't count as the first chunk.
func (x *Exchange) chunk(t *transcript.Transcript, payload string) {
	if payload == "" {
		return
	}
	x.acc += payload

	if x.partial == nil {
		t.RemoveTyping()
		x.partial = t.BeginPartialBot()
		x.setState(StateStreaming)
	}
	// The whole accumulator is rendered every time, so the entry always shows a complete render of
	// a prefix rather than stitched fragments.
	x.partial.Update(x.acc)
}

// done shows the final reply. The authoritative text from the backend wins over the accumulator.
func (x *Exchange) done(t *transcript.Transcript, full string) {
	t.RemoveTyping()

	text := full
	if text == "" {
		text = x.acc
	}
	if x.partial != nil {
		x.partial.Finalize(text)
	} else {
		t.AppendBot(text)
	}
	x.setState(StateDone)
}

// fail discards everything shown for the reply so far, so no partial content is left visible next
// to the fallback result.
func (x *Exchange) fail(t *transcript.Transcript) {
	t.RemoveTyping()
	if x.partial != nil {
		x.partial.Remove()
		x.partial = nil
	}
	x.setState(StateFallbackPending)
}

// abandon finalizes the partial entry with what was received before the stream stopped being live.
// The state is left as it was.
func (x *Exchange) abandon() {
	if x.partial == nil {
		return
	}
	x.partial.Finalize(x.acc)
	x.partial = nil
}

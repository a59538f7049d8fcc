package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MegaGrindStone/webchat/internal/models"
	"github.com/MegaGrindStone/webchat/internal/transcript"
	"github.com/google/uuid"
)

// Session holds the currently open chat and owns the one live reply stream. Its lock serializes
// every change to what the user sees: opening a chat, starting an exchange, and each transition of
// the exchange's state machine all happen while holding it.
type Session struct {
	mu     sync.Mutex
	chatID string
	title  string
	stream *Stream
	// opening counts the calls to Open and Close, so a fetch that finished after a later one started
	// can tell it lost.
	opening uint64

	history    History
	transcript *transcript.Transcript

	logger *slog.Logger
}

// Stream is the handle of a live reply stream. Closing it cancels the underlying request; any event
// already in flight is dropped because the stream is no longer the session's current one.
type Stream struct {
	id     string
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewSession creates a Session with no chat open. Opened chats are loaded from history and shown
// in t.
func NewSession(history History, t *transcript.Transcript, logger *slog.Logger) *Session {
	return &Session{
		history:    history,
		transcript: t,
		logger:     logger.With(slog.String("module", "session")),
	}
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		id:     uuid.New().String(),
		cancel: cancel,
	}
}

// Close cancels the stream. It's safe to call more than once, and on a nil Stream.
func (st *Stream) Close() {
	if st == nil {
		return
	}
	if st.closed.CompareAndSwap(false, true) {
		st.cancel()
	}
}

// Closed reports whether Close was called.
func (st *Stream) Closed() bool {
	return st.closed.Load()
}

// Open makes chatID the active chat. The live stream, if any, is closed first. The history is then
// fetched and replaces the transcript. If the fetch fails, the previous chat stays active and the
// transcript is left untouched. If another Open or Close started while fetching, the result is
// discarded and ErrOpenSuperseded is returned.
func (s *Session) Open(ctx context.Context, chatID string) (models.Chat, error) {
	s.mu.Lock()
	s.opening++
	gen := s.opening
	s.releaseLocked(s.stream)
	s.mu.Unlock()

	chat, err := s.history.Messages(ctx, chatID)
	if err != nil {
		s.logger.Error("Failed to fetch messages",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		return models.Chat{}, fmt.Errorf("failed to open chat %s: %w", chatID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opening != gen {
		s.logger.Debug("Discarding superseded open", slog.String("chatID", chatID))
		return models.Chat{}, ErrOpenSuperseded
	}

	// A message may have been submitted to the previous chat while fetching.
	s.releaseLocked(s.stream)
	s.chatID = chat.ID
	s.title = chat.Title
	s.transcript.Replace(chat.Messages)

	s.logger.Debug("Opened chat",
		slog.String("chatID", chat.ID),
		slog.Int("messages", len(chat.Messages)))

	return chat, nil
}

// Active returns the id of the open chat, and false if there is none.
func (s *Session) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chatID, s.chatID != ""
}

// Title returns the title of the open chat.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.title
}

// SetTitle changes the title of the open chat if it's still chatID.
func (s *Session) SetTitle(chatID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chatID == chatID {
		s.title = title
	}
}

// SetStream makes st the live stream, closing the previous one.
func (s *Session) SetStream(st *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setStreamLocked(st)
}

// Streaming reports whether a reply stream is live.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stream != nil
}

// Close closes the live stream, forgets the open chat, and clears the transcript. It's used when the
// open chat no longer exists.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opening++
	s.releaseLocked(s.stream)
	s.chatID = ""
	s.title = ""
	s.transcript.Replace(nil)
}

// within runs fn while holding the lock, if st is still the live stream. It reports whether fn ran.
func (s *Session) within(st *Stream, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st == nil || s.stream != st {
		return false
	}
	fn()
	return true
}

// withChat runs fn while holding the lock, if chatID is still the open chat. It reports whether fn
// ran.
func (s *Session) withChat(chatID string, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chatID != chatID {
		return false
	}
	fn()
	return true
}

func (s *Session) setStreamLocked(st *Stream) {
	if s.stream != nil && s.stream != st {
		s.logger.Debug("Superseding stream", slog.String("stream", s.stream.id))
		s.stream.Close()
	}
	s.stream = st
}

// releaseLocked closes st and clears it, if it's the live stream.
func (s *Session) releaseLocked(st *Stream) {
	if st == nil || s.stream != st {
		return
	}
	st.Close()
	s.stream = nil
}

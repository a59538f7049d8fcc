package chat

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/MegaGrindStone/webchat/internal/models"
)

// History fetches the authoritative state of a chat from the backend.
type History interface {
	Messages(ctx context.Context, chatID string) (models.Chat, error)
}

// Streamer opens the reply stream for a message. It returns an iterator that yields the decoded
// events in the order the backend emitted them, and transport failures as errors. Cancelling ctx
// must terminate the iteration.
type Streamer interface {
	Stream(ctx context.Context, chatID, text string) iter.Seq2[models.StreamEvent, error]
}

// Fallback sends a message through the static request/response endpoint and returns the whole
// reply. It's used when streaming fails, and is attempted once.
type Fallback interface {
	Send(ctx context.Context, chatID, text string) (string, error)
}

// Uploader attaches a file to a chat and returns the backend's acknowledgment.
type Uploader interface {
	Upload(ctx context.Context, chatID, name string, r io.Reader) (map[string]any, error)
}

var (
	// ErrEmptyMessage is returned when a blank message is submitted. Nothing is sent or rendered.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoActiveChat is returned when a message or a file is submitted while no chat is open.
	// Nothing is sent or rendered.
	ErrNoActiveChat = errors.New("no chat is open")
	// ErrUnsupportedFile is returned for files the backend doesn't accept.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrOpenSuperseded is returned by Session.Open when a later Open or Close started before the
	// history arrived. The session is left as the later call made it.
	ErrOpenSuperseded = errors.New("open superseded by a later one")
)

const (
	noReplyText              = "No reply"
	fallbackStatusErrorText  = "**Error**: static fallback failed"
	fallbackNetworkErrorText = "**Error**: network/static fallback failed"

	errLoggerKey = "err"
)

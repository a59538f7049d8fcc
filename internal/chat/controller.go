package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/webchat/internal/models"
	"github.com/MegaGrindStone/webchat/internal/services"
	"github.com/MegaGrindStone/webchat/internal/transcript"
)

// Controller drives exchanges: it sends messages, renders the streamed replies, and falls back to
// the static endpoint when streaming fails.
type Controller struct {
	ctx context.Context

	session    *Session
	transcript *transcript.Transcript

	streamer Streamer
	fallback Fallback
	uploader Uploader

	logger *slog.Logger
}

type step int

const (
	stepContinue step = iota
	stepStop
	stepFallback
	// stepStale means the stream was superseded or closed by someone else.
	stepStale
)

var errStreamEnded = errors.New("stream ended without a reply")

// NewController creates a Controller. Streams and fallback requests live as long as ctx, not as long
// as the call that started them.
func NewController(
	ctx context.Context,
	session *Session,
	t *transcript.Transcript,
	streamer Streamer,
	fallback Fallback,
	uploader Uploader,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		ctx:        ctx,
		session:    session,
		transcript: t,
		streamer:   streamer,
		fallback:   fallback,
		uploader:   uploader,
		logger:     logger.With(slog.String("module", "controller")),
	}
}

// Submit sends text to the open chat and starts receiving the reply in the background. The user
// message and the typing placeholder are shown before Submit returns, and the stream of a previous
// exchange is closed.
//
// Blank text returns ErrEmptyMessage, and ErrNoActiveChat is returned when no chat is open; in both
// cases nothing is shown or sent.
func (c *Controller) Submit(text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s := c.session
	s.mu.Lock()
	if s.chatID == "" {
		s.mu.Unlock()
		return nil, ErrNoActiveChat
	}

	x := newExchange(s.chatID, text)
	c.transcript.AppendUser(text)
	c.transcript.AppendTyping()

	ctx, cancel := context.WithCancel(c.ctx)
	st := newStream(cancel)
	s.setStreamLocked(st)
	s.mu.Unlock()

	c.logger.Debug("Submitted message",
		slog.String("exchange", x.ID),
		slog.String("chatID", x.ChatID),
		slog.String("stream", st.id))

	go c.run(ctx, st, x)

	return x, nil
}

func (c *Controller) run(ctx context.Context, st *Stream, x *Exchange) {
	defer close(x.finished)

	next := stepContinue
	for ev, err := range c.streamer.Stream(ctx, x.ChatID, x.Text) {
		if err != nil {
			next = c.transportError(st, x, err)
			break
		}
		if next = c.dispatch(st, x, ev); next != stepContinue {
			break
		}
	}
	if next == stepContinue {
		// The backend hung up without finishing the reply.
		next = c.transportError(st, x, errStreamEnded)
	}

	switch next {
	case stepFallback:
		c.runFallback(x)
	case stepStale:
		c.abandon(x)
	}
}

// dispatch applies a stream event to the exchange. Events of a stream that was superseded or closed
// are dropped.
func (c *Controller) dispatch(st *Stream, x *Exchange, ev models.StreamEvent) step {
	next := stepStop
	current := c.session.within(st, func() {
		switch ev.Kind {
		case models.EventChunk:
			x.chunk(c.transcript, ev.Chunk)
			next = stepContinue
		case models.EventDone:
			x.done(c.transcript, ev.Full)
			c.session.releaseLocked(st)
		case models.EventStreamError:
			x.signaled = true
			x.fail(c.transcript)
			c.session.releaseLocked(st)
			next = stepFallback
		default:
			c.logger.Warn("Unknown stream event", slog.String("kind", string(ev.Kind)))
			next = stepContinue
		}
	})
	if !current {
		c.logger.Debug("Dropping event of stale stream",
			slog.String("exchange", x.ID),
			slog.String("kind", string(ev.Kind)))
		return stepStale
	}
	return next
}

// transportError handles a connection failure. It's a no-op if the backend already signaled the
// failure explicitly, or if the stream isn't the live one anymore.
func (c *Controller) transportError(st *Stream, x *Exchange, err error) step {
	next := stepStop
	current := c.session.within(st, func() {
		if x.signaled {
			return
		}
		c.logger.Warn("Stream failed, falling back to static reply",
			slog.String("exchange", x.ID),
			slog.String(errLoggerKey, err.Error()))
		x.fail(c.transcript)
		c.session.releaseLocked(st)
		next = stepFallback
	})
	if !current {
		return stepStale
	}
	return next
}

// abandon settles the exchange of a stream that is no longer live. The reply received so far stays
// shown as it is, without the partial mark.
func (c *Controller) abandon(x *Exchange) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	x.abandon()
}

func (c *Controller) runFallback(x *Exchange) {
	reply, err := c.fallback.Send(c.ctx, x.ChatID, x.Text)

	final := StateDone
	if err != nil {
		final = StateFallbackFailed
		c.logger.Error("Static fallback failed",
			slog.String("exchange", x.ID),
			slog.String(errLoggerKey, err.Error()))
	}

	shown := c.session.withChat(x.ChatID, func() {
		if err != nil {
			c.transcript.AppendError(fallbackErrorText(err))
			return
		}
		if reply == "" {
			reply = noReplyText
		}
		c.transcript.AppendBot(reply)
	})
	if !shown {
		c.logger.Info("Chat changed before fallback resolved, reply not shown",
			slog.String("exchange", x.ID),
			slog.String("chatID", x.ChatID))
	}
	x.setState(final)
}

func fallbackErrorText(err error) string {
	var statusErr *services.StatusError
	if errors.As(err, &statusErr) {
		return fallbackStatusErrorText
	}
	return fallbackNetworkErrorText
}

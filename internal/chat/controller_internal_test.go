package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/MegaGrindStone/webchat/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamingController(t *testing.T) (*Controller, *Stream, *Exchange) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := transcript.New(nil, nil, logger)
	s := NewSession(nil, tr, logger)
	s.chatID = "1"
	c := NewController(context.Background(), s, tr, nil, nil, nil, logger)

	x := newExchange("1", "X")
	tr.AppendUser(x.Text)
	tr.AppendTyping()
	st := newStream(func() {})
	s.SetStream(st)

	return c, st, x
}

func TestTransportError(t *testing.T) {
	t.Run("After signaled error", func(t *testing.T) {
		c, st, x := newStreamingController(t)
		x.signaled = true

		next := c.transportError(st, x, errors.New("connection closed"))

		assert.Equal(t, stepStop, next)
		assert.Equal(t, StatePending, x.State())
		assert.True(t, c.session.Streaming(), "the guard must leave the stream alone")
		assert.True(t, c.transcript.HasTyping())
	})

	t.Run("Without signal", func(t *testing.T) {
		c, st, x := newStreamingController(t)
		x.chunk(c.transcript, "partial")

		next := c.transportError(st, x, errors.New("connection reset"))

		assert.Equal(t, stepFallback, next)
		assert.Equal(t, StateFallbackPending, x.State())
		assert.False(t, c.session.Streaming())
		assert.True(t, st.Closed())
		require.Len(t, c.transcript.Entries(), 1, "the partial entry is removed before falling back")
	})

	t.Run("Stale stream", func(t *testing.T) {
		c, st, x := newStreamingController(t)
		c.session.SetStream(newStream(func() {}))

		next := c.transportError(st, x, context.Canceled)

		assert.Equal(t, stepStale, next)
		assert.Equal(t, StatePending, x.State())
	})
}

func TestAbandonFinalizesPartial(t *testing.T) {
	c, _, x := newStreamingController(t)
	x.chunk(c.transcript, "Hi")
	x.chunk(c.transcript, " there")

	c.abandon(x)
	c.abandon(x)

	entries := c.transcript.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Hi there", entries[1].Markdown)
	assert.False(t, entries[1].Partial)
	assert.Equal(t, StateStreaming, x.State())
}

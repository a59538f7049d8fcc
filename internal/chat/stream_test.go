package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/MegaGrindStone/webchat/internal/transcript"
	"github.com/stretchr/testify/assert"
)

func TestStreamClose(t *testing.T) {
	calls := 0
	st := newStream(func() { calls++ })

	assert.False(t, st.Closed())
	st.Close()
	st.Close()
	assert.True(t, st.Closed())
	assert.Equal(t, 1, calls)

	var nilStream *Stream
	assert.NotPanics(t, nilStream.Close)
}

func TestSetStreamSupersedes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSession(nil, transcript.New(nil, nil, logger), logger)

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := newStream(cancel1)
	s.SetStream(first)
	assert.True(t, s.Streaming())

	second := newStream(func() {})
	s.SetStream(second)

	assert.True(t, first.Closed())
	assert.Error(t, ctx1.Err())
	assert.False(t, second.Closed())

	assert.False(t, s.within(first, func() { t.Error("stale stream must not run") }))
	assert.True(t, s.within(second, func() {}))

	s.mu.Lock()
	s.releaseLocked(first)
	assert.Same(t, second, s.stream)
	s.releaseLocked(second)
	s.mu.Unlock()

	assert.True(t, second.Closed())
	assert.False(t, s.Streaming())
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StatePending, "pending", false},
		{StateStreaming, "streaming", false},
		{StateFallbackPending, "fallback_pending", false},
		{StateDone, "done", true},
		{StateFallbackFailed, "fallback_failed", true},
		{State(42), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

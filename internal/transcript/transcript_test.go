package transcript_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/MegaGrindStone/webchat/internal/models"
	"github.com/MegaGrindStone/webchat/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRenderer struct {
	prefix string
	err    error
}

type mockViewer struct {
	mu    sync.Mutex
	shows [][]transcript.Entry
}

func newTranscript(r transcript.Renderer, v transcript.Viewer) *transcript.Transcript {
	return transcript.New(r, v, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAppendUserIsNotRendered(t *testing.T) {
	tr := newTranscript(&mockRenderer{prefix: "md:"}, nil)

	tr.AppendUser("**hello**")
	tr.AppendBot("**hi**")

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, models.RoleUser, entries[0].Role)
	assert.Equal(t, "**hello**", entries[0].Rendered)
	assert.Equal(t, models.RoleAssistant, entries[1].Role)
	assert.Equal(t, "md:**hi**", entries[1].Rendered)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestTypingPlaceholder(t *testing.T) {
	v := &mockViewer{}
	tr := newTranscript(nil, v)

	tr.AppendUser("hello")
	tr.AppendTyping()
	tr.AppendTyping()

	assert.True(t, tr.HasTyping())
	assert.Equal(t, 1, countTyping(tr.Entries()))

	tr.RemoveTyping()
	assert.False(t, tr.HasTyping())
	assert.Len(t, tr.Entries(), 1)

	shows := v.count()
	tr.RemoveTyping()
	assert.Equal(t, shows, v.count(), "removing a missing placeholder should not notify the viewer")
}

func TestPartialLifecycle(t *testing.T) {
	tests := []struct {
		name      string
		finalize  bool
		wantLen   int
		wantText  string
		wantFinal bool
	}{
		{
			name:      "Finalize",
			finalize:  true,
			wantLen:   2,
			wantText:  "md:Hi there!",
			wantFinal: true,
		},
		{
			name:    "Remove",
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTranscript(&mockRenderer{prefix: "md:"}, nil)
			tr.AppendUser("Hello")

			p := tr.BeginPartialBot()
			entries := tr.Entries()
			require.Len(t, entries, 2)
			assert.True(t, entries[1].Partial)
			assert.Empty(t, entries[1].Markdown)

			p.Update("Hi")
			p.Update("Hi there")
			entries = tr.Entries()
			assert.Equal(t, "Hi there", entries[1].Markdown)
			assert.Equal(t, "md:Hi there", entries[1].Rendered)

			if tt.finalize {
				p.Finalize("Hi there!")
			} else {
				p.Remove()
				p.Remove()
			}

			entries = tr.Entries()
			require.Len(t, entries, tt.wantLen)
			if tt.wantFinal {
				assert.False(t, entries[1].Partial)
				assert.Equal(t, tt.wantText, entries[1].Rendered)
			}
		})
	}
}

func TestPartialAfterReplace(t *testing.T) {
	tr := newTranscript(nil, nil)

	p := tr.BeginPartialBot()
	tr.Replace([]models.Message{{Role: models.RoleUser, Content: "other chat"}})

	p.Update("late chunk")
	p.Finalize("late reply")
	p.Remove()

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "other chat", entries[0].Markdown)
}

func TestReplace(t *testing.T) {
	v := &mockViewer{}
	tr := newTranscript(&mockRenderer{prefix: "md:"}, v)

	tr.AppendUser("old")
	tr.AppendTyping()
	tr.Replace([]models.Message{
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Hi"},
	})

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.False(t, tr.HasTyping())
	assert.Equal(t, "Hello", entries[0].Rendered)
	assert.Equal(t, "md:Hi", entries[1].Rendered)
	assert.Equal(t, entries, v.last())

	tr.Replace(nil)
	assert.Empty(t, tr.Entries())
}

func TestAppendError(t *testing.T) {
	tr := newTranscript(nil, nil)

	tr.AppendError("**Error**: static fallback failed")

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Failed)
	assert.Equal(t, models.RoleAssistant, entries[0].Role)
}

func TestRenderFailureShowsMarkdown(t *testing.T) {
	tr := newTranscript(&mockRenderer{err: errors.New("boom")}, nil)

	tr.AppendBot("# Title")

	assert.Equal(t, "# Title", tr.Entries()[0].Rendered)
}

func TestSetRenderer(t *testing.T) {
	tr := newTranscript(&mockRenderer{prefix: "dark:"}, nil)

	tr.AppendUser("Hello")
	tr.AppendTyping()
	tr.AppendBot("Hi")

	tr.SetRenderer(&mockRenderer{prefix: "light:"})

	entries := tr.Entries()
	assert.Equal(t, "Hello", entries[0].Rendered)
	assert.Equal(t, transcript.TypingText, entries[1].Rendered)
	assert.Equal(t, "light:Hi", entries[2].Rendered)
}

func TestViewerReceivesSnapshots(t *testing.T) {
	v := &mockViewer{}
	tr := newTranscript(nil, v)

	tr.AppendUser("Hello")
	snapshot := v.last()
	tr.AppendBot("Hi")

	assert.Len(t, snapshot, 1, "earlier snapshots must not change")
	assert.Len(t, v.last(), 2)
	assert.Equal(t, 2, v.count())
}

func TestExport(t *testing.T) {
	tr := newTranscript(nil, nil)

	tr.AppendUser("<script>alert(1)</script>")
	tr.AppendBot("**bold**")
	tr.AppendTyping()
	tr.AppendError("**Error**: network/static fallback failed")

	var buf bytes.Buffer
	err := tr.Export(&buf, "My Chat", &mockRenderer{prefix: "<p>", err: nil})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<title>My Chat</title>")
	assert.Contains(t, out, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "<p>**bold**")
	assert.Contains(t, out, `class="message msg-bot error"`)
	assert.NotContains(t, out, transcript.TypingText)
}

func TestExportRenderError(t *testing.T) {
	tr := newTranscript(nil, nil)
	tr.AppendBot("Hi")

	err := tr.Export(io.Discard, "Chat", &mockRenderer{err: errors.New("boom")})
	assert.Error(t, err)
}

func countTyping(entries []transcript.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Typing {
			n++
		}
	}
	return n
}

func (m *mockRenderer) Render(markdown string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.prefix + strings.TrimSpace(markdown), nil
}

func (m *mockViewer) Show(entries []transcript.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shows = append(m.shows, entries)
}

func (m *mockViewer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.shows)
}

func (m *mockViewer) last() []transcript.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.shows) == 0 {
		return nil
	}
	return m.shows[len(m.shows)-1]
}

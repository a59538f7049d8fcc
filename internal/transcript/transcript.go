package transcript

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/MegaGrindStone/webchat/internal/models"
	"github.com/google/uuid"
)

// Renderer turns markdown into its displayable form. Implementations are expected to be safe for use
// by a single goroutine at a time; the transcript never calls them concurrently.
type Renderer interface {
	Render(markdown string) (string, error)
}

// Viewer displays the transcript. Show is called with a snapshot of all entries after every mutation,
// and the viewer is expected to bring the newest entry into view. Show must not call back into the
// transcript.
type Viewer interface {
	Show(entries []Entry)
}

// Entry is a single rendered item of the transcript.
type Entry struct {
	ID   string
	Role models.Role

	// Markdown is the source of the entry. For user entries it's the verbatim text.
	Markdown string
	// Rendered is the displayable form of Markdown. User entries are never run through the renderer.
	Rendered string

	// Partial marks a bot entry that is still receiving chunks.
	Partial bool
	// Typing marks the transient placeholder shown while waiting for the first chunk.
	Typing bool
	// Failed marks an error message shown in place of a reply.
	Failed bool
}

// Transcript holds the ordered entries of the open chat. All methods are safe for concurrent use.
type Transcript struct {
	mu       sync.Mutex
	entries  []Entry
	renderer Renderer
	viewer   Viewer

	logger *slog.Logger
}

// Partial is a handle to a bot entry that is still being streamed. The zero value is not usable;
// obtain one with Transcript.BeginPartialBot.
type Partial struct {
	t  *Transcript
	id string
}

// TypingText is the content of the typing placeholder.
const TypingText = "▮▮▮ thinking…"

// New creates a Transcript that renders bot markdown with renderer and reports every change to
// viewer. Either may be nil: a nil renderer shows markdown as is, a nil viewer discards updates.
func New(renderer Renderer, viewer Viewer, logger *slog.Logger) *Transcript {
	return &Transcript{
		renderer: renderer,
		viewer:   viewer,
		logger:   logger.With(slog.String("module", "transcript")),
	}
}

// AppendUser appends a user entry. The text is shown verbatim.
func (t *Transcript) AppendUser(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, Entry{
		ID:       uuid.New().String(),
		Role:     models.RoleUser,
		Markdown: text,
		Rendered: text,
	})
	t.showLocked()
}

// AppendBot appends a finished bot entry rendered from markdown.
func (t *Transcript) AppendBot(markdown string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, t.botEntryLocked(markdown))
	t.showLocked()
}

// AppendError appends a bot entry that is visibly marked as an error.
func (t *Transcript) AppendError(markdown string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.botEntryLocked(markdown)
	e.Failed = true
	t.entries = append(t.entries, e)
	t.showLocked()
}

// AppendTyping shows the typing placeholder at the end of the transcript. An existing placeholder is
// removed first, so there is never more than one.
func (t *Transcript) AppendTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeTypingLocked()
	t.entries = append(t.entries, Entry{
		ID:       uuid.New().String(),
		Role:     models.RoleAssistant,
		Markdown: TypingText,
		Rendered: TypingText,
		Typing:   true,
	})
	t.showLocked()
}

// RemoveTyping removes the typing placeholder. It's a no-op when there is none, and the viewer is
// not notified in that case.
func (t *Transcript) RemoveTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removeTypingLocked() {
		t.showLocked()
	}
}

// HasTyping reports whether the typing placeholder is shown.
func (t *Transcript) HasTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.ContainsFunc(t.entries, func(e Entry) bool { return e.Typing })
}

// BeginPartialBot appends an empty partial bot entry and returns a handle to mutate it.
func (t *Transcript) BeginPartialBot() *Partial {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{
		ID:      uuid.New().String(),
		Role:    models.RoleAssistant,
		Partial: true,
	}
	t.entries = append(t.entries, e)
	t.showLocked()

	return &Partial{t: t, id: e.ID}
}

// Replace discards all entries, including the typing placeholder, and shows messages instead.
func (t *Transcript) Replace(messages []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		if msg.IsUser() {
			entries = append(entries, Entry{
				ID:       uuid.New().String(),
				Role:     models.RoleUser,
				Markdown: msg.Content,
				Rendered: msg.Content,
			})
			continue
		}
		entries = append(entries, t.botEntryLocked(msg.Content))
	}
	t.entries = entries
	t.showLocked()
}

// SetRenderer swaps the markdown renderer and re-renders every bot entry with it.
func (t *Transcript) SetRenderer(renderer Renderer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.renderer = renderer
	for i := range t.entries {
		e := &t.entries[i]
		if e.Role == models.RoleUser || e.Typing {
			continue
		}
		e.Rendered = t.renderLocked(e.Markdown)
	}
	t.showLocked()
}

// Entries returns a snapshot of the entries.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.entries)
}

// Update re-renders the entry from markdown, which must be the complete text received so far.
func (p *Partial) Update(markdown string) {
	p.t.mutate(p.id, func(e *Entry) {
		e.Markdown = markdown
		e.Rendered = p.t.renderLocked(markdown)
	})
}

// Finalize renders the entry from the authoritative markdown and clears the partial mark.
func (p *Partial) Finalize(markdown string) {
	p.t.mutate(p.id, func(e *Entry) {
		e.Markdown = markdown
		e.Rendered = p.t.renderLocked(markdown)
		e.Partial = false
	})
}

// Remove deletes the entry from the transcript. Removing twice is a no-op.
func (p *Partial) Remove() {
	t := p.t
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexLocked(p.id)
	if idx == -1 {
		return
	}
	t.entries = slices.Delete(t.entries, idx, idx+1)
	t.showLocked()
}

func (t *Transcript) mutate(id string, fn func(e *Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexLocked(id)
	if idx == -1 {
		// The transcript was replaced by another chat while the entry was being streamed.
		t.logger.Debug("Entry is gone", slog.String("id", id))
		return
	}
	fn(&t.entries[idx])
	t.showLocked()
}

func (t *Transcript) indexLocked(id string) int {
	return slices.IndexFunc(t.entries, func(e Entry) bool { return e.ID == id })
}

func (t *Transcript) removeTypingLocked() bool {
	n := len(t.entries)
	t.entries = slices.DeleteFunc(t.entries, func(e Entry) bool { return e.Typing })
	return len(t.entries) != n
}

func (t *Transcript) botEntryLocked(markdown string) Entry {
	return Entry{
		ID:       uuid.New().String(),
		Role:     models.RoleAssistant,
		Markdown: markdown,
		Rendered: t.renderLocked(markdown),
	}
}

func (t *Transcript) renderLocked(markdown string) string {
	if t.renderer == nil {
		return markdown
	}
	rendered, err := t.renderer.Render(markdown)
	if err != nil {
		t.logger.Warn("Failed to render markdown", slog.String(errLoggerKey, err.Error()))
		return markdown
	}
	return rendered
}

func (t *Transcript) showLocked() {
	if t.viewer == nil {
		return
	}
	t.viewer.Show(slices.Clone(t.entries))
}

const errLoggerKey = "err"

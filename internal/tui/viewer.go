package tui

import (
	"slices"
	"sync"

	"github.com/MegaGrindStone/webchat/internal/transcript"
	tea "github.com/charmbracelet/bubbletea"
)

// Viewer implements transcript.Viewer for the terminal program. The transcript changes on network
// goroutines, while the program may only be touched from its own loop, so Show just records the
// latest snapshot and wakes the loop up. Bursts of changes are coalesced into one redraw.
type Viewer struct {
	mu      sync.Mutex
	entries []transcript.Entry

	dirty chan struct{}
}

type refreshMsg struct{}

// NewViewer creates an empty Viewer.
func NewViewer() *Viewer {
	return &Viewer{
		dirty: make(chan struct{}, 1),
	}
}

// Show implements transcript.Viewer.
func (v *Viewer) Show(entries []transcript.Entry) {
	v.mu.Lock()
	v.entries = entries
	v.mu.Unlock()

	select {
	case v.dirty <- struct{}{}:
	default:
	}
}

// Entries returns the latest snapshot.
func (v *Viewer) Entries() []transcript.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	return slices.Clone(v.entries)
}

// wait returns a command that blocks until the transcript changed. The model issues it again after
// every refresh.
func (v *Viewer) wait() tea.Cmd {
	return func() tea.Msg {
		<-v.dirty
		return refreshMsg{}
	}
}

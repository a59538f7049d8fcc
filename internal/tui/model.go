package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/webchat/internal/chat"
	"github.com/MegaGrindStone/webchat/internal/models"
	"github.com/MegaGrindStone/webchat/internal/transcript"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Backend manages chats and the profile on the backend.
type Backend interface {
	CreateChat(ctx context.Context, title string) (models.Chat, error)
	RenameChat(ctx context.Context, chatID, title string) (string, error)
	DeleteChat(ctx context.Context, chatID string) error
	UpdateProfile(ctx context.Context, displayName, theme string) error
}

// Index remembers the chats known to this client.
type Index interface {
	Chats(ctx context.Context) ([]models.Chat, error)
	TouchChat(ctx context.Context, chat models.Chat) error
	UpdateChat(ctx context.Context, chat models.Chat) error
	DeleteChat(ctx context.Context, chatID string) error
}

// Config holds the dependencies of the terminal program.
type Config struct {
	Controller *chat.Controller
	Session    *chat.Session
	Transcript *transcript.Transcript
	Viewer     *Viewer
	Backend    Backend
	Index      Index

	// NewRenderer creates the terminal markdown renderer for a theme.
	NewRenderer func(theme string) (transcript.Renderer, error)
	// ExportRenderer converts markdown to HTML for exported transcripts.
	ExportRenderer transcript.Renderer

	Themes      []string
	Theme       string
	DisplayName string
	// InitialChat is opened at start. If empty, the most recently used chat is opened.
	InitialChat string

	Logger *slog.Logger
}

// Model is the Bubble Tea model of the client: the transcript in a scrolling viewport above a
// growing text input, and a status line.
type Model struct {
	ctx context.Context

	controller *chat.Controller
	session    *chat.Session
	transcript *transcript.Transcript
	viewer     *Viewer
	backend    Backend
	index      Index

	newRenderer    func(theme string) (transcript.Renderer, error)
	exportRenderer transcript.Renderer

	themes      []string
	theme       string
	displayName string
	initialChat string

	viewport viewport.Model
	input    textarea.Model
	status   string
	failed   bool
	width    int
	height   int

	logger *slog.Logger
}

const (
	maxInputHeight = 6
	headerHeight   = 1
	statusHeight   = 1
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	botStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	partialStyle = lipgloss.NewStyle().Faint(true)
	typingStyle  = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle  = lipgloss.NewStyle().Faint(true)
)

// New creates the model. ctx bounds every network call the program makes.
func New(ctx context.Context, cfg Config) Model {
	input := textarea.New()
	input.Placeholder = "Message… (enter to send, alt+enter for a new line, /help for commands)"
	input.ShowLineNumbers = false
	input.CharLimit = 4096
	input.SetHeight(1)
	input.Focus()

	return Model{
		ctx:            ctx,
		controller:     cfg.Controller,
		session:        cfg.Session,
		transcript:     cfg.Transcript,
		viewer:         cfg.Viewer,
		backend:        cfg.Backend,
		index:          cfg.Index,
		newRenderer:    cfg.NewRenderer,
		exportRenderer: cfg.ExportRenderer,
		themes:         cfg.Themes,
		theme:          cfg.Theme,
		displayName:    cfg.DisplayName,
		initialChat:    cfg.InitialChat,
		viewport:       viewport.New(80, 20),
		input:          input,
		logger:         cfg.Logger.With(slog.String("module", "tui")),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.viewer.wait(), m.openInitial())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(msg.Width)
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			cmd := m.submit(m.input.Value())
			m.input.Reset()
			m.layout()
			return m, cmd
		case "alt+enter":
			m.input.InsertString("\n")
			m.layout()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case refreshMsg:
		m.refresh()
		return m, m.viewer.wait()

	case openedMsg:
		m.setStatus("Opened "+msg.chat.Title, nil)
		return m, nil

	case themeMsg:
		m.theme = msg.theme
		return m, nil

	case statusMsg:
		m.setStatus(msg.text, msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.layout()

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	title := m.session.Title()
	if title == "" {
		title = "No chat open"
	}

	status := statusStyle.Render(m.status)
	if m.failed {
		status = errorStyle.Render(m.status)
	}

	return strings.Join([]string{
		titleStyle.Render(title),
		m.viewport.View(),
		m.input.View(),
		status,
	}, "\n")
}

func (m *Model) submit(value string) tea.Cmd {
	if name, arg, ok := parseCommand(value); ok {
		return m.command(name, arg)
	}

	_, err := m.controller.Submit(value)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
	case errors.Is(err, chat.ErrNoActiveChat):
		m.setStatus("Open or create a chat first", nil)
	case err != nil:
		m.setStatus("Failed to send message", err)
	default:
		m.setStatus("", nil)
	}
	return nil
}

func (m *Model) setStatus(text string, err error) {
	m.failed = err != nil
	if err != nil {
		text += ": " + err.Error()
	}
	m.status = text
}

// layout grows the input with its content, up to a limit, and gives the rest to the viewport.
func (m *Model) layout() {
	lines := strings.Count(m.input.Value(), "\n") + 1
	m.input.SetHeight(min(max(lines, 1), maxInputHeight))

	if m.width == 0 {
		return
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-headerHeight-statusHeight-m.input.Height(), 1)
}

// refresh redraws the transcript and scrolls to the newest entry.
func (m *Model) refresh() {
	m.viewport.SetContent(renderEntries(m.viewer.Entries(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderEntries(entries []transcript.Entry, width int) string {
	body := lipgloss.NewStyle().Width(max(width-2, 10)).PaddingLeft(2)

	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch {
		case e.Typing:
			sb.WriteString(typingStyle.Render(e.Rendered))
		case e.Role == models.RoleUser:
			sb.WriteString(userStyle.Render("You"))
			sb.WriteString("\n")
			sb.WriteString(body.Render(e.Rendered))
		case e.Failed:
			sb.WriteString(botStyle.Render("Bot"))
			sb.WriteString("\n")
			sb.WriteString(errorStyle.Render(e.Rendered))
		case e.Partial:
			sb.WriteString(botStyle.Render("Bot"))
			sb.WriteString(partialStyle.Render(" …"))
			sb.WriteString("\n")
			sb.WriteString(e.Rendered)
		default:
			sb.WriteString(botStyle.Render("Bot"))
			sb.WriteString("\n")
			sb.WriteString(e.Rendered)
		}
	}
	return sb.String()
}

func errAttr(err error) slog.Attr {
	return slog.String("err", err.Error())
}

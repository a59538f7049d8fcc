package tui

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/MegaGrindStone/webchat/internal/chat"
	"github.com/MegaGrindStone/webchat/internal/models"
	tea "github.com/charmbracelet/bubbletea"
)

type statusMsg struct {
	text string
	err  error
}

type openedMsg struct {
	chat models.Chat
}

type themeMsg struct {
	theme string
}

const (
	defaultNewChatTitle = "New Chat"

	helpText = "/new [title] · /open <id> · /chats · /rename <title> · /delete · " +
		"/upload <path> · /export <path> · /theme dark|light · /quit"
)

// parseCommand splits a slash command line into its name and argument. It reports false for lines
// that aren't commands.
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

func (m Model) command(name, arg string) tea.Cmd {
	switch name {
	case "new":
		return m.newChat(arg)
	case "open":
		if arg == "" {
			return status("usage: /open <id>")
		}
		return m.openChat(arg)
	case "chats":
		return m.listChats()
	case "rename":
		return m.renameChat(arg)
	case "delete":
		return m.deleteChat()
	case "upload":
		if arg == "" {
			return status("usage: /upload <path>")
		}
		return m.upload(arg)
	case "export":
		if arg == "" {
			return status("usage: /export <path>")
		}
		return m.export(arg)
	case "theme":
		return m.switchTheme(arg)
	case "help":
		return status(helpText)
	case "quit", "exit":
		return tea.Quit
	default:
		return status(fmt.Sprintf("unknown command /%s, try /help", name))
	}
}

func status(text string) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text} }
}

func failure(text string, err error) tea.Msg {
	return statusMsg{text: text, err: err}
}

func (m Model) openChat(chatID string) tea.Cmd {
	return func() tea.Msg {
		c, err := m.session.Open(m.ctx, chatID)
		if errors.Is(err, chat.ErrOpenSuperseded) {
			return nil
		}
		if err != nil {
			return failure("Failed to open chat", err)
		}
		if err := m.index.TouchChat(m.ctx, c); err != nil {
			m.logger.Warn("Failed to index chat", errAttr(err))
		}
		return openedMsg{chat: c}
	}
}

// openInitial opens the configured chat, or the most recently used one from the index.
func (m Model) openInitial() tea.Cmd {
	return func() tea.Msg {
		chatID := m.initialChat
		if chatID == "" {
			chats, err := m.index.Chats(m.ctx)
			if err != nil {
				return failure("Failed to read chat index", err)
			}
			if len(chats) == 0 {
				return statusMsg{text: "No chats yet, create one with /new"}
			}
			chatID = chats[0].ID
		}
		return m.openChat(chatID)()
	}
}

func (m Model) newChat(title string) tea.Cmd {
	if title == "" {
		title = defaultNewChatTitle
	}
	return func() tea.Msg {
		c, err := m.backend.CreateChat(m.ctx, title)
		if err != nil {
			return failure("Failed to create chat", err)
		}
		if err := m.index.TouchChat(m.ctx, c); err != nil {
			m.logger.Warn("Failed to index chat", errAttr(err))
		}
		return m.openChat(c.ID)()
	}
}

func (m Model) listChats() tea.Cmd {
	return func() tea.Msg {
		chats, err := m.index.Chats(m.ctx)
		if err != nil {
			return failure("Failed to read chat index", err)
		}
		if len(chats) == 0 {
			return statusMsg{text: "No chats yet, create one with /new"}
		}
		items := make([]string, len(chats))
		for i, c := range chats {
			items[i] = fmt.Sprintf("%s %s", c.ID, c.Title)
		}
		return statusMsg{text: strings.Join(items, " · ")}
	}
}

func (m Model) renameChat(title string) tea.Cmd {
	chatID, ok := m.session.Active()
	if !ok {
		return status("Open a chat first")
	}
	return func() tea.Msg {
		newTitle, err := m.backend.RenameChat(m.ctx, chatID, title)
		if err != nil {
			return failure("Failed to rename chat", err)
		}
		m.session.SetTitle(chatID, newTitle)
		if err := m.index.UpdateChat(m.ctx, models.Chat{ID: chatID, Title: newTitle}); err != nil {
			m.logger.Warn("Failed to update chat index", errAttr(err))
		}
		return statusMsg{text: "Renamed to " + newTitle}
	}
}

func (m Model) deleteChat() tea.Cmd {
	chatID, ok := m.session.Active()
	if !ok {
		return status("Open a chat first")
	}
	return func() tea.Msg {
		if err := m.backend.DeleteChat(m.ctx, chatID); err != nil {
			return failure("Failed to delete chat", err)
		}
		if err := m.index.DeleteChat(m.ctx, chatID); err != nil {
			m.logger.Warn("Failed to update chat index", errAttr(err))
		}
		m.session.Close()
		return statusMsg{text: "Deleted chat " + chatID}
	}
}

func (m Model) upload(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return failure("Failed to open file", err)
		}
		defer f.Close()

		if _, err := m.controller.Upload(m.ctx, path, f); err != nil {
			if errors.Is(err, chat.ErrNoActiveChat) {
				return statusMsg{text: "Open or create a chat first"}
			}
			return failure("Upload failed", err)
		}
		return statusMsg{text: "Uploaded " + path}
	}
}

func (m Model) export(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			return failure("Failed to create file", err)
		}
		if err := m.transcript.Export(f, m.session.Title(), m.exportRenderer); err != nil {
			_ = f.Close()
			return failure("Failed to export transcript", err)
		}
		if err := f.Close(); err != nil {
			return failure("Failed to write file", err)
		}
		return statusMsg{text: "Exported to " + path}
	}
}

// switchTheme applies the theme locally first and then saves it to the profile. A failed save is
// only reported, the local change stays.
func (m Model) switchTheme(theme string) tea.Cmd {
	if !slices.Contains(m.themes, theme) {
		return status("usage: /theme " + strings.Join(m.themes, "|"))
	}
	renderer, err := m.newRenderer(theme)
	if err != nil {
		return func() tea.Msg { return failure("Failed to switch theme", err) }
	}
	m.transcript.SetRenderer(renderer)

	return tea.Batch(
		func() tea.Msg { return themeMsg{theme: theme} },
		func() tea.Msg {
			if err := m.backend.UpdateProfile(m.ctx, m.displayName, theme); err != nil {
				m.logger.Warn("Failed to save theme", errAttr(err))
				return failure("Theme applied but not saved", err)
			}
			return statusMsg{text: "Theme saved"}
		},
	)
}

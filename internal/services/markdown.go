package services

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

// Glamour renders markdown for display in a terminal, styled for a dark or light background.
type Glamour struct {
	renderer *glamour.TermRenderer
}

// Goldmark renders markdown into HTML with GitHub flavored extensions and highlighted code blocks.
// Raw HTML in the source is omitted from the output.
type Goldmark struct {
	md goldmark.Markdown
}

// Themes lists the themes the client supports. The backend's profile knows the same names.
var Themes = []string{"dark", "light"}

// NewGlamour creates a terminal renderer for theme, wrapping lines at wordWrap columns.
func NewGlamour(theme string, wordWrap int) (Glamour, error) {
	if !slices.Contains(Themes, theme) {
		return Glamour{}, fmt.Errorf("unknown theme: %s", theme)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return Glamour{}, fmt.Errorf("failed to create glamour renderer: %w", err)
	}
	return Glamour{renderer: r}, nil
}

// Render implements transcript.Renderer.
func (g Glamour) Render(markdown string) (string, error) {
	out, err := g.renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}

// NewGoldmark creates an HTML renderer.
func NewGoldmark() Goldmark {
	return Goldmark{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle("github")),
			),
		),
	}
}

// Render implements transcript.Renderer.
func (g Goldmark) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

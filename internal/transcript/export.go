package transcript

import (
	"fmt"
	"html/template"
	"io"
	"time"

	webchat "github.com/MegaGrindStone/webchat"
	"github.com/MegaGrindStone/webchat/internal/models"
)

type exportData struct {
	Title      string
	Entries    []exportEntry
	ExportedAt time.Time
}

type exportEntry struct {
	User    bool
	Text    string
	HTML    template.HTML
	Partial bool
	Failed  bool
}

// Export writes the transcript as a standalone HTML document. Bot entries are converted with
// htmlRenderer, which must produce HTML; user entries are escaped. The typing placeholder is skipped.
func (t *Transcript) Export(w io.Writer, title string, htmlRenderer Renderer) error {
	tmpl, err := template.ParseFS(webchat.TemplateFS, "templates/export.html")
	if err != nil {
		return fmt.Errorf("failed to parse export template: %w", err)
	}

	entries := t.Entries()
	data := exportData{
		Title:      title,
		Entries:    make([]exportEntry, 0, len(entries)),
		ExportedAt: time.Now(),
	}
	for _, e := range entries {
		if e.Typing {
			continue
		}
		if e.Role == models.RoleUser {
			data.Entries = append(data.Entries, exportEntry{User: true, Text: e.Markdown})
			continue
		}
		html, err := htmlRenderer.Render(e.Markdown)
		if err != nil {
			return fmt.Errorf("failed to render entry %s: %w", e.ID, err)
		}
		data.Entries = append(data.Entries, exportEntry{
			// The renderer must not pass raw HTML through.
			HTML:    template.HTML(html), //nolint:gosec
			Partial: e.Partial,
			Failed:  e.Failed,
		})
	}

	if err := tmpl.ExecuteTemplate(w, "export.html", data); err != nil {
		return fmt.Errorf("failed to execute export template: %w", err)
	}
	return nil
}

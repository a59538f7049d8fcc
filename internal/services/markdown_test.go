package services_test

import (
	"testing"

	"github.com/MegaGrindStone/webchat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGlamour(t *testing.T) {
	for _, theme := range services.Themes {
		t.Run(theme, func(t *testing.T) {
			g, err := services.NewGlamour(theme, 80)
			require.NoError(t, err)

			out, err := g.Render("# Title\n\nSome **bold** text.")
			require.NoError(t, err)
			assert.Contains(t, out, "Title")
			assert.Contains(t, out, "bold")
			assert.NotContains(t, out, "**")
		})
	}

	_, err := services.NewGlamour("neon", 80)
	assert.Error(t, err)
}

func TestGoldmark(t *testing.T) {
	tests := []struct {
		name        string
		markdown    string
		contains    []string
		notContains []string
	}{
		{
			name:     "Emphasis",
			markdown: "Some **bold** text",
			contains: []string{"<strong>bold</strong>"},
		},
		{
			name:     "Table",
			markdown: "| a | b |\n|---|---|\n| 1 | 2 |",
			contains: []string{"<table>", "<td>1</td>"},
		},
		{
			name:     "Highlighted code",
			markdown: "```go\nfunc main() {}\n```",
			contains: []string{"<pre", "func"},
		},
		{
			name:        "Raw HTML is omitted",
			markdown:    "<script>alert(1)</script>",
			notContains: []string{"<script>"},
		},
	}

	g := services.NewGoldmark()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := g.Render(tt.markdown)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, out, s)
			}
		})
	}
}

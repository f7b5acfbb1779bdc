// Package goldmark renders the markdown in answer summaries to ANSI-styled
// terminal text, using goldmark for parsing and lipgloss for styling.
package goldmark

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"

	"github.com/fwojciec/pulse"
)

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width; code blocks keep
// their line structure.
func Render(source string, width int, theme pulse.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	doc := goldmark.DefaultParser().Parse(text.NewReader([]byte(source)))
	w := &writer{styles: newStyles(theme), src: []byte(source), width: width}
	return w.document(doc)
}

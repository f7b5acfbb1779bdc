package goldmark

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark/ast"

	"github.com/fwojciec/pulse"
)

// styleSet holds the lipgloss styles applied to markdown constructs.
type styleSet struct {
	heading   lipgloss.Style
	bold      lipgloss.Style
	italic    lipgloss.Style
	underline lipgloss.Style
	muted     lipgloss.Style
}

func newStyles(theme pulse.Theme) styleSet {
	return styleSet{
		heading:   lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		underline: lipgloss.NewStyle().Underline(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

// writer renders a parsed markdown tree. Each block renders to a string
// without a trailing newline; document joins blocks with blank lines.
type writer struct {
	styles styleSet
	src    []byte
	width  int
}

func (w *writer) document(doc ast.Node) string {
	return w.blocks(doc)
}

func (w *writer) blocks(parent ast.Node) string {
	var parts []string
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		if s := w.block(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (w *writer) block(node ast.Node) string {
	switch n := node.(type) {
	case *ast.Paragraph:
		return lipgloss.NewStyle().Width(w.width).Render(w.inline(n))

	case *ast.Heading:
		styled := w.styles.heading.Render(w.inline(n))
		return lipgloss.NewStyle().Width(w.width).Render(styled)

	case *ast.FencedCodeBlock:
		var lines []string
		if lang := string(n.Language(w.src)); lang != "" {
			lines = append(lines, w.styles.muted.Render(lang))
		}
		return strings.Join(append(lines, w.codeLines(n)...), "\n")

	case *ast.CodeBlock:
		return strings.Join(w.codeLines(n), "\n")

	case *ast.List:
		return w.list(n, 0)

	case *ast.ThematicBreak:
		return "---"

	case *ast.HTMLBlock:
		return strings.TrimRight(w.rawLines(n), "\n")

	default:
		// Blockquotes and anything else unrecognized: render the children
		// as plain blocks.
		return w.blocks(node)
	}
}

// codeLines renders a code block's lines behind a muted gutter, without
// reflowing them.
func (w *writer) codeLines(node ast.Node) []string {
	gutter := w.styles.muted.Render("│") + " "
	segs := node.Lines()
	out := make([]string, 0, segs.Len())
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		content := strings.TrimRight(string(seg.Value(w.src)), "\n")
		out = append(out, gutter+content)
	}
	return out
}

func (w *writer) rawLines(node ast.Node) string {
	var b strings.Builder
	segs := node.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		b.Write(seg.Value(w.src))
	}
	return b.String()
}

func (w *writer) list(node *ast.List, depth int) string {
	indent := strings.Repeat("  ", depth)
	num := node.Start

	var lines []string
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		var marker string
		if node.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		} else {
			marker = "- "
		}
		lines = append(lines, w.listItem(item, indent+marker, depth)...)
	}
	return strings.Join(lines, "\n")
}

// listItem renders one item's inline text under its marker, then any nested
// lists and blocks under a matching hanging indent.
func (w *writer) listItem(item *ast.ListItem, prefix string, depth int) []string {
	var lines []string
	var text strings.Builder
	flush := func() {
		if text.Len() == 0 {
			return
		}
		lines = append(lines, w.hang(prefix, text.String())...)
		prefix = strings.Repeat(" ", len(prefix))
		text.Reset()
	}

	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			text.WriteString(w.inline(n))
		case *ast.List:
			flush()
			lines = append(lines, w.list(n, depth+1))
			prefix = strings.Repeat(" ", len(prefix))
		default:
			text.WriteString(w.block(n))
		}
	}
	flush()
	return lines
}

// hang wraps content to the width remaining after prefix, indenting
// continuation lines to line up under the first.
func (w *writer) hang(prefix, content string) []string {
	width := w.width - len(prefix)
	if width < 10 {
		width = 10
	}
	wrapped := lipgloss.NewStyle().Width(width).Render(content)
	continuation := strings.Repeat(" ", len(prefix))

	var out []string
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			out = append(out, prefix+line)
		} else {
			out = append(out, continuation+line)
		}
	}
	return out
}

// inline collects the styled inline text of a block's children.
func (w *writer) inline(node ast.Node) string {
	var b strings.Builder
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.span(c, &b)
	}
	return b.String()
}

func (w *writer) span(node ast.Node, b *strings.Builder) {
	switch n := node.(type) {
	case *ast.Text:
		b.Write(n.Segment.Value(w.src))
		if n.SoftLineBreak() {
			b.WriteByte(' ')
		}
		if n.HardLineBreak() {
			b.WriteByte('\n')
		}

	case *ast.String:
		b.Write(n.Value)

	case *ast.Emphasis:
		inner := w.spans(n)
		if n.Level == 1 {
			b.WriteString(w.styles.italic.Render(inner))
		} else {
			// ***bold italic*** arrives as nested Emphasis nodes, so the
			// level here is never above 2.
			b.WriteString(w.styles.bold.Render(inner))
		}

	case *ast.CodeSpan:
		b.WriteString(w.styles.bold.Render(w.spans(n)))

	case *ast.Link:
		b.WriteString(w.styles.underline.Render(w.spans(n)))
		b.WriteString(" ")
		b.WriteString(w.styles.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.AutoLink:
		b.WriteString(w.styles.underline.Render(string(n.URL(w.src))))

	case *ast.Image:
		b.WriteString(w.styles.underline.Render(w.spans(n)))
		b.WriteString(" ")
		b.WriteString(w.styles.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(w.src))
		}

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			w.span(c, b)
		}
	}
}

func (w *writer) spans(node ast.Node) string {
	var b strings.Builder
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.span(c, &b)
	}
	return b.String()
}

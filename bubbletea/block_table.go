package bubbletea

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	rw "github.com/mattn/go-runewidth"
)

var _ MessageBlock = (*TableBlock)(nil)

// TableBlock renders a result sample as an aligned text table. Column
// order is alphabetical so the same rows always render the same way.
type TableBlock struct {
	rows   []map[string]any
	styles Styles
}

// NewTableBlock creates a TableBlock.
func NewTableBlock(rows []map[string]any, styles Styles) *TableBlock {
	return &TableBlock{rows: rows, styles: styles}
}

func (b *TableBlock) View(width int) string {
	if len(b.rows) == 0 {
		return ""
	}

	cols := b.columns()
	widths := make([]int, len(cols))
	for i, col := range cols {
		widths[i] = rw.StringWidth(col)
	}
	cells := make([][]string, len(b.rows))
	for r, row := range b.rows {
		cells[r] = make([]string, len(cols))
		for i, col := range cols {
			cell := formatCell(row[col])
			cells[r][i] = cell
			if w := rw.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	for i, col := range cols {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(b.styles.Table.Render(pad(col, widths[i])))
	}
	sb.WriteString("\n")
	for i, w := range widths {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(b.styles.Muted.Render(strings.Repeat("─", w)))
	}
	for _, row := range cells {
		sb.WriteString("\n")
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(pad(cell, widths[i]))
		}
	}
	return sb.String()
}

// columns returns the union of keys across all rows, sorted.
func (b *TableBlock) columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range b.rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func pad(s string, width int) string {
	if gap := width - rw.StringWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// formatCell renders a decoded JSON value. Whole-number floats drop the
// fraction, matching how the numbers looked in the source data.
func formatCell(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprintf("%v", n)
	}
}

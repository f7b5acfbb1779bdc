package bubbletea

import (
	"strconv"
	"strings"

	"github.com/fwojciec/pulse"
	rw "github.com/mattn/go-runewidth"
)

var _ MessageBlock = (*ChartBlock)(nil)

// ChartBlock renders chart data as horizontal unicode bars, one row per
// value, scaled to the longest bar that fits the width.
type ChartBlock struct {
	chart  pulse.ChartData
	styles Styles
}

// NewChartBlock creates a ChartBlock.
func NewChartBlock(chart pulse.ChartData, styles Styles) *ChartBlock {
	return &ChartBlock{chart: chart, styles: styles}
}

func (b *ChartBlock) View(width int) string {
	var sb strings.Builder
	first := true
	for _, series := range b.chart.Series {
		if len(series.Data) == 0 {
			continue
		}
		if !first {
			sb.WriteString("\n")
		}
		first = false
		if series.Label != "" {
			sb.WriteString(b.styles.Accent.Render(series.Label))
			sb.WriteString("\n")
		}
		b.renderSeries(&sb, series, width)
	}
	return sb.String()
}

func (b *ChartBlock) renderSeries(sb *strings.Builder, series pulse.ChartSeries, width int) {
	labelW := 0
	for i := range series.Data {
		if w := rw.StringWidth(b.label(i)); w > labelW {
			labelW = w
		}
	}
	maxVal := 0.0
	for _, v := range series.Data {
		if v > maxVal {
			maxVal = v
		}
	}

	barW := width - labelW - 12 // room for label, gap and value text
	if barW < 8 {
		barW = 8
	}

	for i, v := range series.Data {
		if i > 0 {
			sb.WriteString("\n")
		}
		n := 0
		if maxVal > 0 && v > 0 {
			n = int(v / maxVal * float64(barW))
			if n == 0 {
				n = 1
			}
		}
		sb.WriteString(pad(b.label(i), labelW))
		sb.WriteString(" ")
		sb.WriteString(b.styles.Chart.Render(strings.Repeat("█", n)))
		sb.WriteString(" ")
		sb.WriteString(b.styles.Muted.Render(strconv.FormatFloat(v, 'f', -1, 64)))
	}
}

func (b *ChartBlock) label(i int) string {
	if i < len(b.chart.Labels) {
		return b.chart.Labels[i]
	}
	return strconv.Itoa(i + 1)
}

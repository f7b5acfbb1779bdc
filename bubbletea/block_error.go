package bubbletea

import "github.com/charmbracelet/lipgloss"

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders a failed request. The server error code, when known,
// appears muted after the user-facing text.
type ErrorBlock struct {
	code   string
	text   string
	styles Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(code, text string, styles Styles) *ErrorBlock {
	return &ErrorBlock{code: code, text: text, styles: styles}
}

func (b *ErrorBlock) View(width int) string {
	content := b.styles.Error.Render("✗ " + b.text)
	if b.code != "" {
		content += " " + b.styles.Muted.Render("("+b.code+")")
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

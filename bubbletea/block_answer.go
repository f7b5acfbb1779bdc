package bubbletea

import (
	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/goldmark"
)

var _ MessageBlock = (*AnswerBlock)(nil)

// AnswerBlock renders the assistant's summary as markdown.
type AnswerBlock struct {
	text   string
	theme  pulse.Theme
	styles Styles
}

// NewAnswerBlock creates an AnswerBlock.
func NewAnswerBlock(text string, theme pulse.Theme, styles Styles) *AnswerBlock {
	return &AnswerBlock{text: text, theme: theme, styles: styles}
}

func (b *AnswerBlock) View(width int) string {
	return goldmark.Render(b.text, width, b.theme)
}

package bubbletea

import "github.com/fwojciec/pulse"

// MessageBlock is a renderable element in the conversation transcript.
// View takes a width parameter so the root model controls layout and
// blocks are testable in isolation.
type MessageBlock interface {
	View(width int) string
}

// blockFor maps a conversation message to its renderer. Blocks are
// stateless views over the snapshot; a new set is built on every update.
func blockFor(msg pulse.Message, theme pulse.Theme, styles Styles) MessageBlock {
	switch m := msg.(type) {
	case pulse.UserMessage:
		return NewUserBlock(m.Text, styles)
	case pulse.StatusMessage:
		return NewStatusBlock(m.Text, styles)
	case pulse.TextMessage:
		return NewAnswerBlock(m.Text, theme, styles)
	case pulse.ErrorMessage:
		return NewErrorBlock(m.Code, m.Text, styles)
	case pulse.TableMessage:
		return NewTableBlock(m.Rows, styles)
	case pulse.ChartMessage:
		return NewChartBlock(m.Chart, styles)
	default:
		return nil
	}
}

package bubbletea

import "github.com/charmbracelet/lipgloss"

var _ MessageBlock = (*UserBlock)(nil)

// UserBlock renders a user question with a "> " prefix.
type UserBlock struct {
	text   string
	styles Styles
}

// NewUserBlock creates a UserBlock.
func NewUserBlock(text string, styles Styles) *UserBlock {
	return &UserBlock{text: text, styles: styles}
}

func (b *UserBlock) View(width int) string {
	content := b.styles.UserMsg.Render("> ") + b.text
	return lipgloss.NewStyle().Width(width).Render(content)
}

var _ MessageBlock = (*StatusBlock)(nil)

// StatusBlock renders transient progress text for an in-flight request.
type StatusBlock struct {
	text   string
	styles Styles
}

// NewStatusBlock creates a StatusBlock.
func NewStatusBlock(text string, styles Styles) *StatusBlock {
	return &StatusBlock{text: text, styles: styles}
}

func (b *StatusBlock) View(width int) string {
	content := b.styles.Status.Render("• " + b.text)
	return lipgloss.NewStyle().Width(width).Render(content)
}

// Package bubbletea provides a Bubble Tea TUI for the pulse chat client.
//
// The model renders immutable conversation snapshots pushed by the state
// machine; it never mutates conversation state itself. User intent (send,
// cancel) flows back through the [pulse.Chat] API.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/pulse"
)

// Run creates and runs the Bubble Tea TUI program. It blocks until the
// program exits. Cancelling the context quits the program.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// ConversationMsg delivers a fresh conversation snapshot to the model.
type ConversationMsg struct {
	Conversation pulse.Conversation
}

// SendResultMsg signals that a send attempt returned.
type SendResultMsg struct {
	Err error
}

// listenForUpdate waits for the next snapshot from the channel.
func listenForUpdate(ch <-chan pulse.Conversation) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		conv, ok := <-ch
		if !ok {
			return nil
		}
		return ConversationMsg{Conversation: conv}
	}
}

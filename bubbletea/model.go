package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/pulse"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the pulse TUI. It is a view over
// conversation snapshots: every ConversationMsg replaces the rendered
// transcript wholesale, so the UI can never drift from the state machine.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable transcript area. Exported for test access.
	Viewport viewport.Model

	chat    *pulse.Chat
	convID  string
	theme   pulse.Theme
	styles  Styles
	usage   *pulse.UsageCounter
	updates <-chan pulse.Conversation

	conv    pulse.Conversation
	sendErr error
	ready   bool
}

// ModelOption configures a [Model].
type ModelOption func(*Model)

// WithUsageDisplay shows today's question count in the status line.
func WithUsageDisplay(u *pulse.UsageCounter) ModelOption {
	return func(m *Model) { m.usage = u }
}

// New creates a TUI Model over the given chat machine and conversation.
// Snapshots arriving on updates refresh the transcript.
func New(chat *pulse.Chat, convID string, theme pulse.Theme, updates <-chan pulse.Conversation, opts ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about your data..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		Input:   ti,
		chat:    chat,
		convID:  convID,
		theme:   theme,
		styles:  NewStyles(theme),
		updates: updates,
	}
	if conv, ok := chat.Conversation(convID); ok {
		m.conv = conv
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Err returns the last send error, if any.
func (m Model) Err() error { return m.sendErr }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenForUpdate(m.updates))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConversationMsg:
		if msg.Conversation.ID == m.convID {
			m.conv = msg.Conversation
			if m.ready {
				m.Viewport.SetContent(m.renderContent())
				m.Viewport.GotoBottom()
			}
		}
		return m, listenForUpdate(m.updates)

	case SendResultMsg:
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.sendErr = msg.Err
		}
		return m, nil
	}

	// Pass remaining messages to sub-components. The viewport always
	// receives messages for scrolling (keyboard and mouse).
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusH := 1
	borderH := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusH - borderH
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
		m.Viewport.SetContent(m.renderContent())
	}

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		// First Ctrl+C aborts an in-flight request; the next one quits.
		if m.chat.Active(m.convID) {
			_ = m.chat.Cancel(m.convID)
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		m.Input.SetValue("")
		m.sendErr = nil
		// Sending while a request is in flight cancels and replaces it.
		return m, sendQuestion(m.chat, m.convID, text)
	}

	// Keys go to both the input (for typing) and the viewport (for
	// scrolling). Only non-character keys reach the viewport to keep
	// letters like 'j'/'k' typable.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if msg.Type != tea.KeyRunes {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) renderContent() string {
	if len(m.conv.Messages) == 0 {
		return m.styles.Muted.Render("Upload a dataset or ask a question to get started.")
	}
	var b strings.Builder
	for i, msg := range m.conv.Messages {
		block := blockFor(msg, m.theme, m.styles)
		if block == nil {
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

func (m Model) statusLine() string {
	if m.sendErr != nil {
		if errors.Is(m.sendErr, pulse.ErrLimitReached) {
			return m.styles.Error.Render("Daily question limit reached. Try again tomorrow.")
		}
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.sendErr))
	}
	if m.chat.Active(m.convID) {
		return m.styles.Muted.Render("Working... (Ctrl+C to cancel)")
	}
	hint := "Enter to send, Ctrl+C to quit"
	if m.usage != nil {
		hint += fmt.Sprintf("  ·  %d/%d today", m.usage.Count(time.Now()), m.usage.Limit())
	}
	return m.styles.Muted.Render(hint)
}

// sendQuestion issues the send off the UI goroutine; Open blocks on the
// initial HTTP exchange.
func sendQuestion(chat *pulse.Chat, convID, text string) tea.Cmd {
	return func() tea.Msg {
		return SendResultMsg{Err: chat.Send(context.Background(), convID, text)}
	}
}

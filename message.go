package pulse

import "time"

// Message is a sealed interface over the conversation message kinds.
// The unexported marker method prevents external implementations.
//
// Every message carries a stable id assigned at creation. Consumers locate
// messages by id, never by list position: the placeholder for an in-flight
// request keeps its id across every kind conversion it goes through.
type Message interface {
	isMessage()
	MessageID() string
	Role() Role
}

// UserMessage is a question typed by the user.
type UserMessage struct {
	ID        string
	Text      string
	Timestamp time.Time
}

func (UserMessage) isMessage() {}

func (m UserMessage) MessageID() string { return m.ID }

// Role returns RoleUser.
func (UserMessage) Role() Role { return RoleUser }

// StatusMessage shows transient progress text while a request is in flight.
// It is the initial kind of every placeholder.
type StatusMessage struct {
	ID        string
	Text      string
	Timestamp time.Time
}

func (StatusMessage) isMessage() {}

func (m StatusMessage) MessageID() string { return m.ID }

// Role returns RoleAssistant.
func (StatusMessage) Role() Role { return RoleAssistant }

// TextMessage holds the assistant's answer summary.
type TextMessage struct {
	ID        string
	Text      string
	Timestamp time.Time
}

func (TextMessage) isMessage() {}

func (m TextMessage) MessageID() string { return m.ID }

// Role returns RoleAssistant.
func (TextMessage) Role() Role { return RoleAssistant }

// ErrorMessage holds a user-facing failure. Code is the server error code
// when the failure came from a well-formed error event; empty for transport
// failures.
type ErrorMessage struct {
	ID        string
	Code      string
	Text      string
	Timestamp time.Time
}

func (ErrorMessage) isMessage() {}

func (m ErrorMessage) MessageID() string { return m.ID }

// Role returns RoleAssistant.
func (ErrorMessage) Role() Role { return RoleAssistant }

// TableMessage holds a tabular result sample.
type TableMessage struct {
	ID        string
	Rows      []map[string]any
	Timestamp time.Time
}

func (TableMessage) isMessage() {}

func (m TableMessage) MessageID() string { return m.ID }

// Role returns RoleAssistant.
func (TableMessage) Role() Role { return RoleAssistant }

// ChartMessage holds a chart artifact.
type ChartMessage struct {
	ID        string
	Chart     ChartData
	Timestamp time.Time
}

func (ChartMessage) isMessage() {}

func (m ChartMessage) MessageID() string { return m.ID }

// Role returns RoleAssistant.
func (ChartMessage) Role() Role { return RoleAssistant }

// Interface compliance checks.
var (
	_ Message = UserMessage{}
	_ Message = StatusMessage{}
	_ Message = TextMessage{}
	_ Message = ErrorMessage{}
	_ Message = TableMessage{}
	_ Message = ChartMessage{}
)

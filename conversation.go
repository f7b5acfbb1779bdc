package pulse

import "time"

// Conversation is an ordered sequence of messages plus the dataset the
// conversation is bound to, if any. Values are treated as immutable: every
// mutation helper returns a new value with a fresh Messages slice, so a
// snapshot handed to an observer never changes underneath it.
type Conversation struct {
	ID        string
	DatasetID string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Find returns the message with the given id.
func (c Conversation) Find(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.MessageID() == id {
			return m, true
		}
	}
	return nil, false
}

// WithMessage returns a copy of the conversation with msg appended.
func (c Conversation) WithMessage(msg Message) Conversation {
	msgs := make([]Message, len(c.Messages), len(c.Messages)+1)
	copy(msgs, c.Messages)
	c.Messages = append(msgs, msg)
	return c
}

// WithReplaced returns a copy with the message whose id matches replaced by
// msg, preserving its position. When no message carries that id the
// conversation is returned unchanged and ok is false.
func (c Conversation) WithReplaced(id string, msg Message) (_ Conversation, ok bool) {
	for i, m := range c.Messages {
		if m.MessageID() != id {
			continue
		}
		msgs := make([]Message, len(c.Messages))
		copy(msgs, c.Messages)
		msgs[i] = msg
		c.Messages = msgs
		return c, true
	}
	return c, false
}

// WithDataset returns a copy bound to the given dataset.
func (c Conversation) WithDataset(datasetID string) Conversation {
	c.DatasetID = datasetID
	return c
}

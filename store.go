package pulse

import "context"

// Store persists conversations. The state machine calls Save fire-and-forget
// on a background goroutine; implementations must not assume a transition
// waits for them. Load is used when resuming a conversation.
type Store interface {
	Save(ctx context.Context, conv Conversation) error
	Load(ctx context.Context, id string) (Conversation, error)
}

package pulse

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrLimitReached indicates the daily question limit is exhausted.
	ErrLimitReached = errors.New("daily question limit reached")

	// ErrNoActiveStream indicates a cancel with nothing in flight.
	ErrNoActiveStream = errors.New("no active stream")

	// ErrConversationNotFound indicates an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrFileTooLarge indicates an upload above the service size cap.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedFile indicates an upload with a disallowed type.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

package pulse

import "context"

// ChatRequest carries one question to the analysis service.
type ChatRequest struct {
	SessionID string
	DatasetID string
	Question  string
}

// Stream uses a pull-based iterator pattern. Cancellation flows through the
// context passed to Opener.Open().
//
// Next() returns events strictly in arrival order; two events from the same
// stream are never delivered concurrently. It returns io.EOF when the server
// closes the stream. Natural closure carries no implicit outcome; callers
// must rely on an explicit terminal event to know the logical result.
// Transport failures surface as non-EOF errors, never as events.
//
// Close() releases the underlying reader and is idempotent; Next() after
// Close() returns ErrStreamClosed.
type Stream interface {
	Next() (StreamEvent, error)
	Close() error
}

// Opener is a strategy pattern interface for the streaming transport.
// An Opener with an already-cancelled context must fail without issuing
// a request.
type Opener interface {
	Open(ctx context.Context, req ChatRequest) (Stream, error)
}

// TokenSource supplies the bearer credential attached to outgoing requests.
// Tokens are read synchronously at request time and refreshed externally.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return staticToken(tok)
}

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

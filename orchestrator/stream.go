package orchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/sse"
)

// Interface compliance check.
var _ pulse.Stream = (*stream)(nil)

// stream implements [pulse.Stream] over an SSE response body.
//
// Events already decoded are delivered before any terminal error, so a
// consumer always observes the full prefix of the stream that arrived.
type stream struct {
	ctx    context.Context
	body   io.ReadCloser
	dec    sse.Decoder
	buf    []byte
	queue  []pulse.StreamEvent
	err    error // terminal, reported once the queue drains
	closed bool
}

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		ctx:  ctx,
		body: body,
		buf:  make([]byte, 4096),
	}
}

// Next returns the next event in arrival order. It returns io.EOF when the
// server closes the stream normally and [pulse.ErrStreamClosed] after Close.
func (s *stream) Next() (pulse.StreamEvent, error) {
	for {
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue = s.queue[1:]
			return evt, nil
		}
		if s.closed {
			return pulse.StreamEvent{}, pulse.ErrStreamClosed
		}
		if s.err != nil {
			return pulse.StreamEvent{}, s.err
		}

		n, err := s.body.Read(s.buf)
		if n > 0 {
			for _, frame := range s.dec.Decode(string(s.buf[:n])) {
				evt := sse.Parse(frame)
				if evt.Empty() {
					continue
				}
				s.queue = append(s.queue, pulse.StreamEvent{
					Type:  evt.Type,
					Data:  evt.Data,
					Raw:   evt.Raw,
					Retry: evt.Retry,
				})
			}
		}
		if err != nil {
			s.err = s.terminalError(err)
		}
	}
}

// Close releases the underlying connection. Subsequent Next calls return
// [pulse.ErrStreamClosed]. Close is idempotent.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.queue = nil
	return s.body.Close()
}

// terminalError maps a body read error to what Next should surface.
// Cancellation shows up as the context error so callers can match it with
// errors.Is; a clean server close is io.EOF.
func (s *stream) terminalError(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == io.EOF {
		return io.EOF
	}
	return fmt.Errorf("orchestrator: read stream: %w", err)
}

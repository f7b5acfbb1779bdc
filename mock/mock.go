// Package mock provides test doubles for pulse interfaces using function
// fields.
package mock

import (
	"context"
	"io"

	"github.com/fwojciec/pulse"
)

// Interface compliance checks.
var (
	_ pulse.Opener      = (*Opener)(nil)
	_ pulse.Stream      = (*Stream)(nil)
	_ pulse.Store       = (*Store)(nil)
	_ pulse.Uploader    = (*Uploader)(nil)
	_ pulse.TokenSource = (*TokenSource)(nil)
)

// Opener is a test double for pulse.Opener.
// Set OpenFn before calling Open.
type Opener struct {
	OpenFn func(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error)
}

// Open delegates to OpenFn.
func (o *Opener) Open(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
	return o.OpenFn(ctx, req)
}

// Stream is a test double for pulse.Stream.
// Set NextFn; CloseFn is optional.
type Stream struct {
	NextFn  func() (pulse.StreamEvent, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (pulse.StreamEvent, error) {
	return s.NextFn()
}

// Close delegates to CloseFn when set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Store is a test double for pulse.Store.
// Unset function fields make the corresponding method a no-op.
type Store struct {
	SaveFn func(ctx context.Context, conv pulse.Conversation) error
	LoadFn func(ctx context.Context, id string) (pulse.Conversation, error)
}

// Save delegates to SaveFn when set.
func (s *Store) Save(ctx context.Context, conv pulse.Conversation) error {
	if s.SaveFn == nil {
		return nil
	}
	return s.SaveFn(ctx, conv)
}

// Load delegates to LoadFn when set.
func (s *Store) Load(ctx context.Context, id string) (pulse.Conversation, error) {
	if s.LoadFn == nil {
		return pulse.Conversation{}, pulse.ErrConversationNotFound
	}
	return s.LoadFn(ctx, id)
}

// Uploader is a test double for pulse.Uploader.
type Uploader struct {
	RequestSlotFn func(ctx context.Context, f pulse.UploadFile) (pulse.UploadSlot, error)
	PutFn         func(ctx context.Context, url string, r io.Reader, f pulse.UploadFile) error
}

// RequestSlot delegates to RequestSlotFn.
func (u *Uploader) RequestSlot(ctx context.Context, f pulse.UploadFile) (pulse.UploadSlot, error) {
	return u.RequestSlotFn(ctx, f)
}

// Put delegates to PutFn when set.
func (u *Uploader) Put(ctx context.Context, url string, r io.Reader, f pulse.UploadFile) error {
	if u.PutFn == nil {
		return nil
	}
	return u.PutFn(ctx, url, r, f)
}

// TokenSource is a test double for pulse.TokenSource.
type TokenSource struct {
	TokenFn func(ctx context.Context) (string, error)
}

// Token delegates to TokenFn.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	return t.TokenFn(ctx)
}

// EventStream returns a Stream that replays events in order and then
// returns io.EOF. Close is a no-op.
func EventStream(events ...pulse.StreamEvent) *Stream {
	i := 0
	return &Stream{
		NextFn: func() (pulse.StreamEvent, error) {
			if i >= len(events) {
				return pulse.StreamEvent{}, io.EOF
			}
			evt := events[i]
			i++
			return evt, nil
		},
	}
}

package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// statusText maps progress event types to placeholder text shown while the
// server works. A payload message, when present, takes precedence.
var statusText = map[string]string{
	EventReceived:    "Request received...",
	EventClassifying: "Analyzing query intent...",
	EventValidating:  "Validating analysis...",
	EventRunningFast: "Running analysis...",
	EventSummarizing: "Summarizing results...",
	EventPersisting:  "Saving results...",
}

const (
	connectingText   = "Connecting..."
	cancelledText    = "Cancelled."
	transportErrText = "Connection lost. Please try again."
	serverErrText    = "Something went wrong. Please try again."
)

// Chat is the conversation state machine. It owns a set of conversations,
// opens at most one stream session per conversation, applies incoming
// events as pure transformations of the conversation value, and notifies an
// observer with immutable snapshots.
//
// A second send for a conversation with a stream in flight cancels the
// prior session and clears its timers before the new request is issued
// (cancel-and-replace). Every session is tagged with the conversation's
// epoch at open time; events from a session whose epoch no longer matches
// are discarded, so a stale session's late callbacks cannot corrupt
// current state.
type Chat struct {
	opener   Opener
	store    Store
	uploader Uploader
	usage    *UsageCounter
	reveal   RevealConfig
	onChange func(Conversation)
	onEvent  func(convID string, evt StreamEvent)

	mu     sync.Mutex
	convs  map[string]Conversation
	epochs map[string]int
	active map[string]*session
}

// session tracks one in-flight request. terminal flips when a terminal
// event has been applied; nothing mutates the placeholder afterwards except
// the pacing steps scheduled by that same terminal.
type session struct {
	convID        string
	epoch         int
	placeholderID string
	cancel        context.CancelFunc
	timers        *TimerRegistry
	terminal      bool
}

// ChatOption configures a [Chat].
type ChatOption func(*Chat)

// WithStore sets the persistence collaborator. Saves are fire-and-forget.
func WithStore(s Store) ChatOption {
	return func(c *Chat) { c.store = s }
}

// WithUploader sets the file-upload collaborator.
func WithUploader(u Uploader) ChatOption {
	return func(c *Chat) { c.uploader = u }
}

// WithUsage sets the daily question counter.
func WithUsage(u *UsageCounter) ChatOption {
	return func(c *Chat) { c.usage = u }
}

// WithReveal enables paced disclosure of terminal summaries.
func WithReveal(cfg RevealConfig) ChatOption {
	return func(c *Chat) { c.reveal = cfg }
}

// WithOnChange sets the state observer. It receives an immutable snapshot
// after every applied transition.
func WithOnChange(fn func(Conversation)) ChatOption {
	return func(c *Chat) { c.onChange = fn }
}

// WithOnEvent sets a raw event observer. Synthetic retry events arrive here
// like any other.
func WithOnEvent(fn func(convID string, evt StreamEvent)) ChatOption {
	return func(c *Chat) { c.onEvent = fn }
}

// NewChat creates a Chat driving streams from the given opener.
func NewChat(opener Opener, opts ...ChatOption) *Chat {
	c := &Chat{
		opener: opener,
		convs:  make(map[string]Conversation),
		epochs: make(map[string]int),
		active: make(map[string]*session),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewConversation registers an empty conversation and returns its id.
func (c *Chat) NewConversation() string {
	id := uuid.NewString()
	now := time.Now()
	c.mu.Lock()
	c.convs[id] = Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	c.mu.Unlock()
	return id
}

// Conversation returns a snapshot of the conversation with the given id.
func (c *Chat) Conversation(id string) (Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.convs[id]
	return conv, ok
}

// Active reports whether a stream is in flight for the conversation.
func (c *Chat) Active(convID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.active[convID]
	return s != nil && !s.terminal
}

// Resume loads a previously persisted conversation from the store.
func (c *Chat) Resume(ctx context.Context, id string) (Conversation, error) {
	if c.store == nil {
		return Conversation{}, ErrConversationNotFound
	}
	conv, err := c.store.Load(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	c.mu.Lock()
	c.convs[id] = conv
	c.mu.Unlock()
	return conv, nil
}

// SetDataset binds a dataset to the conversation.
func (c *Chat) SetDataset(convID, datasetID string) {
	c.mu.Lock()
	conv, ok := c.convs[convID]
	if ok {
		conv = conv.WithDataset(datasetID)
		c.convs[convID] = conv
	}
	cb := c.onChange
	c.mu.Unlock()
	if ok && cb != nil {
		cb(conv)
	}
}

// Upload pushes a dataset file through the Uploader and binds the resulting
// dataset id to the conversation. It never opens a stream; a failed upload
// leaves the conversation unchanged and no session leaked.
func (c *Chat) Upload(ctx context.Context, convID string, f UploadFile, r io.Reader) (string, error) {
	if c.uploader == nil {
		return "", errors.New("pulse: no uploader configured")
	}
	if f.SessionID == "" {
		f.SessionID = convID
	}
	slot, err := c.uploader.RequestSlot(ctx, f)
	if err != nil {
		return "", err
	}
	if err := c.uploader.Put(ctx, slot.URL, r, f); err != nil {
		return "", err
	}
	c.SetDataset(convID, slot.DatasetID)
	return slot.DatasetID, nil
}

// Send asks a question on the conversation. Any stream already in flight
// for it is cancelled first, together with its timers; then a user message
// and a status placeholder are appended and a new session opened. Events
// from the session mutate the placeholder by id until a terminal event or
// cancellation settles it.
func (c *Chat) Send(ctx context.Context, convID, question string) error {
	if c.usage != nil && !c.usage.Allow(time.Now()) {
		return ErrLimitReached
	}

	now := time.Now()
	placeholderID := uuid.NewString()

	c.mu.Lock()
	if prev := c.active[convID]; prev != nil {
		// Cancel-and-replace: the prior session and its timers must be
		// dead before the new request is issued.
		prev.cancel()
		prev.timers.Stop()
		delete(c.active, convID)
	}
	conv, ok := c.convs[convID]
	if !ok {
		conv = Conversation{ID: convID, CreatedAt: now}
	}
	conv = conv.WithMessage(UserMessage{ID: uuid.NewString(), Text: question, Timestamp: now})
	conv = conv.WithMessage(StatusMessage{ID: placeholderID, Text: connectingText, Timestamp: now})
	conv.UpdatedAt = now
	c.convs[convID] = conv

	c.epochs[convID]++
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		convID:        convID,
		epoch:         c.epochs[convID],
		placeholderID: placeholderID,
		cancel:        cancel,
		timers:        NewTimerRegistry(),
	}
	c.active[convID] = s
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(conv)
	}
	c.persist(conv)

	stream, err := c.opener.Open(sctx, ChatRequest{
		SessionID: convID,
		DatasetID: conv.DatasetID,
		Question:  question,
	})
	if err != nil {
		c.fail(s, err)
		return err
	}

	go c.drain(s, stream)
	return nil
}

// Cancel aborts the active stream for a conversation, clears its timers and
// converts the placeholder to a "Cancelled." status. It is the only
// transition not triggered by a server event. Cancelling after a terminal
// event only stops any remaining pacing; the settled messages stay as they
// are.
func (c *Chat) Cancel(convID string) error {
	c.mu.Lock()
	s := c.active[convID]
	if s == nil {
		c.mu.Unlock()
		return ErrNoActiveStream
	}
	delete(c.active, convID)
	c.epochs[convID]++ // late callbacks from this session are now stale
	s.cancel()
	s.timers.Stop()
	if s.terminal {
		c.mu.Unlock()
		return nil
	}
	s.terminal = true
	conv := c.convs[convID]
	next, changed := conv.WithReplaced(s.placeholderID, StatusMessage{
		ID:        s.placeholderID,
		Text:      cancelledText,
		Timestamp: time.Now(),
	})
	if changed {
		next.UpdatedAt = time.Now()
		c.convs[convID] = next
	}
	cb := c.onChange
	c.mu.Unlock()

	if changed {
		if cb != nil {
			cb(next)
		}
		c.persist(next)
	}
	return nil
}

// Close aborts every active session. Used at teardown.
func (c *Chat) Close() {
	c.mu.Lock()
	sessions := make([]*session, 0, len(c.active))
	for id, s := range c.active {
		sessions = append(sessions, s)
		c.epochs[id]++
		delete(c.active, id)
	}
	c.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
		s.timers.Stop()
	}
}

// drain pulls events off the stream and applies them in arrival order.
func (c *Chat) drain(s *session, st Stream) {
	defer st.Close()
	for {
		evt, err := st.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.settle(s)
			} else {
				c.fail(s, err)
			}
			return
		}
		c.deliver(s, evt)
	}
}

// settle ends a session on natural stream closure. Closure carries no
// implicit outcome: the placeholder is left exactly as the last event put
// it. Pacing scheduled by a terminal event keeps running (the session stays
// registered until it finishes, so Cancel can still stop it); without a
// terminal, any pending retry timers are cleared.
func (c *Chat) settle(s *session) {
	c.mu.Lock()
	terminal := s.terminal
	if !terminal && c.active[s.convID] == s {
		delete(c.active, s.convID)
	}
	c.mu.Unlock()
	if !terminal {
		s.timers.Stop()
	}
}

// fail ends a session on a transport failure. A failure caused by
// cancellation is swallowed; anything else converts the placeholder into a
// generic retry-prompting error bubble. Server-sent error events do not
// come through here; they are ordinary events handled in deliver.
func (c *Chat) fail(s *session, err error) {
	cancelled := errors.Is(err, context.Canceled)

	c.mu.Lock()
	if c.epochs[s.convID] != s.epoch || s.terminal {
		c.mu.Unlock()
		return
	}
	s.terminal = true
	if c.active[s.convID] == s {
		delete(c.active, s.convID)
	}
	c.mu.Unlock()
	s.timers.Stop()
	if cancelled {
		return
	}

	c.mu.Lock()
	conv := c.convs[s.convID]
	next, changed := conv.WithReplaced(s.placeholderID, ErrorMessage{
		ID:        s.placeholderID,
		Text:      transportErrText,
		Timestamp: time.Now(),
	})
	if changed {
		next.UpdatedAt = time.Now()
		c.convs[s.convID] = next
	}
	cb := c.onChange
	c.mu.Unlock()

	if changed {
		if cb != nil {
			cb(next)
		}
		c.persist(next)
	}
}

// deliver applies one event to the session's conversation. Events from a
// stale epoch or after a terminal are discarded. A missing placeholder
// makes the event a no-op, never a panic.
func (c *Chat) deliver(s *session, evt StreamEvent) {
	if evt.Retry > 0 {
		// A retry directive is an application-level signal, not a
		// transport reconnect instruction: schedule a synthetic event on
		// the session's registry so aborting the session cancels it.
		delay := evt.Retry
		s.timers.After(delay, func() {
			c.deliver(s, StreamEvent{
				Type: EventRetry,
				Data: json.RawMessage(strconv.FormatInt(delay.Milliseconds(), 10)),
			})
		})
	}
	if evt.Type == "" {
		return
	}

	now := time.Now()

	c.mu.Lock()
	if c.epochs[s.convID] != s.epoch || s.terminal {
		c.mu.Unlock()
		return
	}
	conv := c.convs[s.convID]
	next := conv
	changed := false

	switch {
	case isStatus(evt.Type):
		text := statusText[evt.Type]
		var p StatusPayload
		if evt.Data != nil && json.Unmarshal(evt.Data, &p) == nil && p.Message != "" {
			text = p.Message
		}
		next, changed = conv.WithReplaced(s.placeholderID, StatusMessage{
			ID:        s.placeholderID,
			Text:      text,
			Timestamp: now,
		})

	case evt.Type == EventDone:
		var p DonePayload
		if evt.Data == nil || json.Unmarshal(evt.Data, &p) != nil {
			// Unusable payload: the event stays a no-op rather than a crash.
			break
		}
		s.terminal = true
		if c.usage != nil {
			c.usage.Record(now, s.placeholderID)
		}
		if c.reveal.enabled() {
			next, changed = conv.WithReplaced(s.placeholderID, TextMessage{
				ID:        s.placeholderID,
				Text:      "",
				Timestamp: now,
			})
			if changed {
				c.startReveal(s, p)
			}
		} else {
			next, changed = applyDone(conv, s.placeholderID, p, now)
		}
		if !c.reveal.enabled() && c.active[s.convID] == s {
			delete(c.active, s.convID)
		}

	case evt.Type == EventError:
		s.terminal = true
		msg, code := serverErrText, ""
		var p ErrorPayload
		if evt.Data != nil && json.Unmarshal(evt.Data, &p) == nil {
			if p.Message != "" {
				msg = p.Message
			}
			code = p.Code
		}
		next, changed = conv.WithReplaced(s.placeholderID, ErrorMessage{
			ID:        s.placeholderID,
			Code:      code,
			Text:      msg,
			Timestamp: now,
		})
		if c.active[s.convID] == s {
			delete(c.active, s.convID)
		}

	default:
		// Heartbeats, synthetic retries and unrecognized types are inert.
	}

	if changed {
		next.UpdatedAt = now
		c.convs[s.convID] = next
	}
	onEvent := c.onEvent
	onChange := c.onChange
	c.mu.Unlock()

	if onEvent != nil {
		onEvent(s.convID, evt)
	}
	if changed {
		if onChange != nil {
			onChange(next)
		}
		c.persist(next)
	}
}

// applyDone converts the placeholder to the summary text and appends the
// artifacts. The table step always resolves before the chart step: a chart
// is never appended ahead of, or instead of, a table.
func applyDone(conv Conversation, placeholderID string, p DonePayload, now time.Time) (Conversation, bool) {
	next, ok := conv.WithReplaced(placeholderID, TextMessage{
		ID:        placeholderID,
		Text:      doneSummary(p),
		Timestamp: now,
	})
	if !ok {
		return conv, false
	}
	if len(p.TableSample) > 0 {
		next = next.WithMessage(TableMessage{ID: uuid.NewString(), Rows: p.TableSample, Timestamp: now})
	}
	if p.ChartData != nil && p.ChartData.HasSeries() {
		next = next.WithMessage(ChartMessage{ID: uuid.NewString(), Chart: *p.ChartData, Timestamp: now})
	}
	return next, true
}

func doneSummary(p DonePayload) string {
	if p.Summary != "" {
		return p.Summary
	}
	return p.Message
}

func isStatus(t string) bool {
	_, ok := statusText[t]
	return ok
}

// persist hands the snapshot to the store on a background goroutine.
// Persistence is best-effort and never blocks a state transition.
func (c *Chat) persist(conv Conversation) {
	if c.store == nil {
		return
	}
	go func() {
		_ = c.store.Save(context.Background(), conv)
	}()
}

package pulse_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects conversation snapshots from the OnChange observer.
type recorder struct {
	mu    sync.Mutex
	snaps []pulse.Conversation
}

func (r *recorder) observe(conv pulse.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, conv)
}

func (r *recorder) snapshots() []pulse.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pulse.Conversation(nil), r.snaps...)
}

func replayOpener(events ...pulse.StreamEvent) *mock.Opener {
	return &mock.Opener{
		OpenFn: func(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
			return mock.EventStream(events...), nil
		},
	}
}

// blockingOpener returns an opener whose stream delivers events pushed to
// the returned channel and honors context cancellation.
func blockingOpener() (*mock.Opener, chan pulse.StreamEvent) {
	events := make(chan pulse.StreamEvent)
	opener := &mock.Opener{
		OpenFn: func(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
			return &mock.Stream{
				NextFn: func() (pulse.StreamEvent, error) {
					select {
					case <-ctx.Done():
						return pulse.StreamEvent{}, ctx.Err()
					case evt, ok := <-events:
						if !ok {
							return pulse.StreamEvent{}, context.Canceled
						}
						return evt, nil
					}
				},
			}, nil
		},
	}
	return opener, events
}

func waitSettled(t *testing.T, chat *pulse.Chat, convID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !chat.Active(convID)
	}, time.Second, 2*time.Millisecond)
}

func placeholderID(t *testing.T, conv pulse.Conversation) string {
	t.Helper()
	require.NotEmpty(t, conv.Messages)
	last := conv.Messages[len(conv.Messages)-1]
	require.IsType(t, pulse.StatusMessage{}, last)
	return last.MessageID()
}

func TestSendAppendsUserMessageAndPlaceholder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	chat := pulse.NewChat(replayOpener(), pulse.WithOnChange(rec.observe))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "Average revenue?"))
	waitSettled(t, chat, convID)

	conv, ok := chat.Conversation(convID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)

	user, ok := conv.Messages[0].(pulse.UserMessage)
	require.True(t, ok)
	assert.Equal(t, "Average revenue?", user.Text)
	assert.Equal(t, pulse.RoleUser, user.Role())

	status, ok := conv.Messages[1].(pulse.StatusMessage)
	require.True(t, ok)
	assert.Equal(t, "Connecting...", status.Text)
	assert.Equal(t, pulse.RoleAssistant, status.Role())
}

func TestStatusEventsReplaceInPlaceKeepingID(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventReceived, Data: json.RawMessage(`{"message":"Question received"}`)},
		pulse.StreamEvent{Type: pulse.EventClassifying},
		pulse.StreamEvent{Type: pulse.EventRunningFast, Data: json.RawMessage(`{"message":"Scanning 1.2M rows"}`)},
	), pulse.WithOnChange(rec.observe))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	snaps := rec.snapshots()
	require.NotEmpty(t, snaps)
	id := placeholderID(t, snaps[0])

	var texts []string
	for _, snap := range snaps {
		require.Len(t, snap.Messages, 2, "status updates must replace, not append")
		msg, found := snap.Find(id)
		require.True(t, found, "placeholder id must be stable across updates")
		texts = append(texts, msg.(pulse.StatusMessage).Text)
	}
	assert.Equal(t, []string{
		"Connecting...",
		"Question received",
		"Analyzing query intent...",
		"Scanning 1.2M rows",
	}, texts)
}

func TestDoneResolvesTextTableAndChartInOrder(t *testing.T) {
	t.Parallel()

	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventReceived},
		pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{
			"summary": "EU leads with 42.",
			"tableSample": [{"region":"EU","revenue":42}],
			"chartData": {"kind":"bar","labels":["EU"],"series":[{"label":"revenue","data":[42]}]}
		}`)},
	))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	conv, _ := chat.Conversation(convID)
	require.Len(t, conv.Messages, 4)
	text, ok := conv.Messages[1].(pulse.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "EU leads with 42.", text.Text)
	table, ok := conv.Messages[2].(pulse.TableMessage)
	require.True(t, ok)
	assert.Equal(t, []map[string]any{{"region": "EU", "revenue": 42.0}}, table.Rows)
	chart, ok := conv.Messages[3].(pulse.ChartMessage)
	require.True(t, ok)
	assert.Equal(t, "bar", chart.Chart.Kind)
}

func TestDoneSkipsEmptyTableAndSeriesLessChart(t *testing.T) {
	t.Parallel()

	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{
			"summary": "No rows matched.",
			"tableSample": [],
			"chartData": {"kind":"bar","labels":["a"],"series":[{"label":"x","data":[]}]}
		}`)},
	))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	conv, _ := chat.Conversation(convID)
	require.Len(t, conv.Messages, 2)
	assert.IsType(t, pulse.TextMessage{}, conv.Messages[1])
}

func TestDoneFallsBackToMessageField(t *testing.T) {
	t.Parallel()

	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{"message":"Legacy summary."}`)},
	))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	conv, _ := chat.Conversation(convID)
	text, ok := conv.Messages[1].(pulse.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "Legacy summary.", text.Text)
}

func TestDoneWithUnusableDataIsInert(t *testing.T) {
	t.Parallel()

	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventDone, Raw: "not json"},
	))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	conv, _ := chat.Conversation(convID)
	require.Len(t, conv.Messages, 2)
	assert.IsType(t, pulse.StatusMessage{}, conv.Messages[1])
}

func TestErrorEventBecomesErrorBubble(t *testing.T) {
	t.Parallel()

	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventError, Data: json.RawMessage(`{"code":"query_failed","message":"Query timed out."}`)},
	))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	conv, _ := chat.Conversation(convID)
	require.Len(t, conv.Messages, 2)
	errMsg, ok := conv.Messages[1].(pulse.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, "query_failed", errMsg.Code)
	assert.Equal(t, "Query timed out.", errMsg.Text)
}

func TestErrorEventWithoutPayloadUsesGenericText(t *testing.T) {
	t.Parallel()

	chat := pulse.NewChat(replayOpener(pulse.StreamEvent{Type: pulse.EventError}))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	conv, _ := chat.Conversation(convID)
	errMsg, ok := conv.Messages[1].(pulse.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, "Something went wrong. Please try again.", errMsg.Text)
	assert.Empty(t, errMsg.Code)
}

func TestTransportFailureBecomesRetryBubble(t *testing.T) {
	t.Parallel()

	opener := &mock.Opener{
		OpenFn: func(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
			return &mock.Stream{
				NextFn: func() (pulse.StreamEvent, error) {
					return pulse.StreamEvent{}, errors.New("connection reset")
				},
			}, nil
		},
	}
	chat := pulse.NewChat(opener)
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	require.Eventually(t, func() bool {
		conv, _ := chat.Conversation(convID)
		_, ok := conv.Messages[1].(pulse.ErrorMessage)
		return ok
	}, time.Second, 2*time.Millisecond)

	conv, _ := chat.Conversation(convID)
	errMsg := conv.Messages[1].(pulse.ErrorMessage)
	assert.Equal(t, "Connection lost. Please try again.", errMsg.Text)
	assert.Empty(t, errMsg.Code, "transport failures carry no server code")
}

func TestOpenFailureReturnsErrorAndShowsBubble(t *testing.T) {
	t.Parallel()

	opener := &mock.Opener{
		OpenFn: func(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
			return nil, errors.New("dial tcp: refused")
		},
	}
	chat := pulse.NewChat(opener)
	convID := chat.NewConversation()
	err := chat.Send(context.Background(), convID, "q")
	require.Error(t, err)

	conv, _ := chat.Conversation(convID)
	require.Len(t, conv.Messages, 2)
	assert.IsType(t, pulse.ErrorMessage{}, conv.Messages[1])
	assert.False(t, chat.Active(convID))
}

func TestCancelMidStreamShowsCancelledStatus(t *testing.T) {
	t.Parallel()

	opener, events := blockingOpener()
	chat := pulse.NewChat(opener)
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))

	events <- pulse.StreamEvent{Type: pulse.EventRunningFast}
	require.Eventually(t, func() bool {
		conv, _ := chat.Conversation(convID)
		msg, _ := conv.Messages[1].(pulse.StatusMessage)
		return msg.Text == "Running analysis..."
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, chat.Cancel(convID))

	conv, _ := chat.Conversation(convID)
	require.Len(t, conv.Messages, 2)
	status, ok := conv.Messages[1].(pulse.StatusMessage)
	require.True(t, ok, "cancellation must not produce an error bubble")
	assert.Equal(t, "Cancelled.", status.Text)

	// The swallowed context cancellation must not later overwrite the
	// cancelled status with a transport error.
	time.Sleep(20 * time.Millisecond)
	conv, _ = chat.Conversation(convID)
	assert.IsType(t, pulse.StatusMessage{}, conv.Messages[1])
}

func TestCancelWithoutActiveStream(t *testing.T) {
	t.Parallel()

	chat := pulse.NewChat(replayOpener())
	convID := chat.NewConversation()
	require.ErrorIs(t, chat.Cancel(convID), pulse.ErrNoActiveStream)
}

func TestSendCancelsAndReplacesInFlightRequest(t *testing.T) {
	t.Parallel()

	opener, events := blockingOpener()
	firstDone := false
	opener2 := &mock.Opener{
		OpenFn: func(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
			if !firstDone {
				firstDone = true
				return opener.OpenFn(ctx, req)
			}
			return mock.EventStream(
				pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{"summary":"Second answer."}`)},
			), nil
		},
	}
	chat := pulse.NewChat(opener2)
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "first"))
	require.NoError(t, chat.Send(context.Background(), convID, "second"))
	waitSettled(t, chat, convID)
	close(events)

	require.Eventually(t, func() bool {
		conv, _ := chat.Conversation(convID)
		if len(conv.Messages) != 4 {
			return false
		}
		text, ok := conv.Messages[3].(pulse.TextMessage)
		return ok && text.Text == "Second answer."
	}, time.Second, 2*time.Millisecond)

	// The first placeholder stays as the stale session left it; the stale
	// session's cancellation must not add an error bubble.
	conv, _ := chat.Conversation(convID)
	assert.IsType(t, pulse.StatusMessage{}, conv.Messages[1])
}

func TestStaleSessionEventsAreDiscarded(t *testing.T) {
	t.Parallel()

	opener, events := blockingOpener()
	chat := pulse.NewChat(opener)
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	require.NoError(t, chat.Cancel(convID))

	// The drain goroutine may still pull one more event; it must not
	// mutate the conversation.
	select {
	case events <- pulse.StreamEvent{Type: pulse.EventSummarizing}:
	case <-time.After(50 * time.Millisecond):
	}
	time.Sleep(20 * time.Millisecond)

	conv, _ := chat.Conversation(convID)
	status, ok := conv.Messages[1].(pulse.StatusMessage)
	require.True(t, ok)
	assert.Equal(t, "Cancelled.", status.Text)
}

func TestHeartbeatAndUnknownEventsAreInert(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventPing},
		pulse.StreamEvent{Type: "telemetry", Data: json.RawMessage(`{"x":1}`)},
	), pulse.WithOnChange(rec.observe))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	conv, _ := chat.Conversation(convID)
	require.Len(t, conv.Messages, 2)
	status, ok := conv.Messages[1].(pulse.StatusMessage)
	require.True(t, ok)
	assert.Equal(t, "Connecting...", status.Text)
	// Only the initial send produced a state change.
	assert.Len(t, rec.snapshots(), 1)
}

func TestRetryDirectiveSynthesizesDelayedEvent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	onEvent := func(convID string, evt pulse.StreamEvent) {
		mu.Lock()
		seen = append(seen, evt.Type)
		mu.Unlock()
	}

	opener, events := blockingOpener()
	chat := pulse.NewChat(opener, pulse.WithOnEvent(onEvent))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))

	events <- pulse.StreamEvent{Type: pulse.EventReceived, Retry: 20 * time.Millisecond}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, typ := range seen {
			if typ == pulse.EventRetry {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
	close(events)
}

func TestCancelStopsPendingRetryTimer(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	onEvent := func(convID string, evt pulse.StreamEvent) {
		mu.Lock()
		seen = append(seen, evt.Type)
		mu.Unlock()
	}

	opener, events := blockingOpener()
	chat := pulse.NewChat(opener, pulse.WithOnEvent(onEvent))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))

	events <- pulse.StreamEvent{Type: pulse.EventReceived, Retry: 40 * time.Millisecond}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, chat.Cancel(convID))
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, typ := range seen {
		assert.NotEqual(t, pulse.EventRetry, typ, "cancel must stop pending retry timers")
	}
}

func TestSendBlockedByDailyLimit(t *testing.T) {
	t.Parallel()

	usage := pulse.NewUsageCounter(1)
	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{"summary":"ok"}`)},
	), pulse.WithUsage(usage))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "first"))
	waitSettled(t, chat, convID)

	require.Eventually(t, func() bool {
		return !usage.Allow(time.Now())
	}, time.Second, 2*time.Millisecond)
	require.ErrorIs(t, chat.Send(context.Background(), convID, "second"), pulse.ErrLimitReached)
}

func TestDuplicateDoneCountsOnce(t *testing.T) {
	t.Parallel()

	usage := pulse.NewUsageCounter(10)
	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{"summary":"ok"}`)},
		pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{"summary":"again"}`)},
	), pulse.WithUsage(usage))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	require.Eventually(t, func() bool {
		return usage.Count(time.Now()) == 1
	}, time.Second, 2*time.Millisecond)

	// The second done arrived after the terminal and was discarded.
	conv, _ := chat.Conversation(convID)
	text := conv.Messages[1].(pulse.TextMessage)
	assert.Equal(t, "ok", text.Text)
}

func TestSavePersistsAfterTransitions(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var saved []pulse.Conversation
	store := &mock.Store{
		SaveFn: func(ctx context.Context, conv pulse.Conversation) error {
			mu.Lock()
			saved = append(saved, conv)
			mu.Unlock()
			return nil
		},
	}
	chat := pulse.NewChat(replayOpener(
		pulse.StreamEvent{Type: pulse.EventDone, Data: json.RawMessage(`{"summary":"ok"}`)},
	), pulse.WithStore(store))
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, conv := range saved {
			if len(conv.Messages) == 2 {
				if _, ok := conv.Messages[1].(pulse.TextMessage); ok {
					return true
				}
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}

func TestResumeLoadsFromStore(t *testing.T) {
	t.Parallel()

	stored := pulse.Conversation{
		ID: "conv-1",
		Messages: []pulse.Message{
			pulse.UserMessage{ID: "m1", Text: "hello"},
		},
	}
	store := &mock.Store{
		LoadFn: func(ctx context.Context, id string) (pulse.Conversation, error) {
			if id != "conv-1" {
				return pulse.Conversation{}, pulse.ErrConversationNotFound
			}
			return stored, nil
		},
	}
	chat := pulse.NewChat(replayOpener(), pulse.WithStore(store))

	conv, err := chat.Resume(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1)

	got, ok := chat.Conversation("conv-1")
	require.True(t, ok)
	assert.Equal(t, conv, got)

	_, err = chat.Resume(context.Background(), "nope")
	require.ErrorIs(t, err, pulse.ErrConversationNotFound)
}

func TestUploadBindsDataset(t *testing.T) {
	t.Parallel()

	uploader := &mock.Uploader{
		RequestSlotFn: func(ctx context.Context, f pulse.UploadFile) (pulse.UploadSlot, error) {
			assert.Equal(t, "sales.csv", f.Name)
			assert.NotEmpty(t, f.SessionID)
			return pulse.UploadSlot{URL: "https://blobs/slot-1", DatasetID: "ds-42"}, nil
		},
	}
	var opened []pulse.ChatRequest
	opener := &mock.Opener{
		OpenFn: func(ctx context.Context, req pulse.ChatRequest) (pulse.Stream, error) {
			opened = append(opened, req)
			return mock.EventStream(), nil
		},
	}
	chat := pulse.NewChat(opener, pulse.WithUploader(uploader))
	convID := chat.NewConversation()

	datasetID, err := chat.Upload(context.Background(), convID, pulse.UploadFile{Name: "sales.csv", Size: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ds-42", datasetID)

	conv, _ := chat.Conversation(convID)
	assert.Equal(t, "ds-42", conv.DatasetID)

	// Subsequent sends carry the dataset.
	require.NoError(t, chat.Send(context.Background(), convID, "q"))
	waitSettled(t, chat, convID)
	require.Len(t, opened, 1)
	assert.Equal(t, "ds-42", opened[0].DatasetID)
}

func TestUploadFailureLeavesConversationUnchanged(t *testing.T) {
	t.Parallel()

	uploader := &mock.Uploader{
		RequestSlotFn: func(ctx context.Context, f pulse.UploadFile) (pulse.UploadSlot, error) {
			return pulse.UploadSlot{}, pulse.ErrFileTooLarge
		},
	}
	chat := pulse.NewChat(replayOpener(), pulse.WithUploader(uploader))
	convID := chat.NewConversation()

	_, err := chat.Upload(context.Background(), convID, pulse.UploadFile{Name: "big.csv", Size: 1 << 30}, nil)
	require.ErrorIs(t, err, pulse.ErrFileTooLarge)

	conv, _ := chat.Conversation(convID)
	assert.Empty(t, conv.DatasetID)
	assert.Empty(t, conv.Messages)
	assert.False(t, chat.Active(convID))
}

func TestCloseAbortsAllSessions(t *testing.T) {
	t.Parallel()

	opener, events := blockingOpener()
	chat := pulse.NewChat(opener)
	convID := chat.NewConversation()
	require.NoError(t, chat.Send(context.Background(), convID, "q"))

	chat.Close()
	assert.False(t, chat.Active(convID))
	close(events)
}

package pulse

import (
	"encoding/json"
	"time"
)

// Server-defined event taxonomy. The progress group replaces the
// placeholder's status text; "done" and "error" are terminal; "ping" is a
// heartbeat with no actionable payload. Unrecognized types are inert.
const (
	EventMessage     = "message"
	EventReceived    = "received"
	EventClassifying = "classifying"
	EventValidating  = "validating"
	EventRunningFast = "running_fast"
	EventSummarizing = "summarizing"
	EventPersisting  = "persisting"
	EventDone        = "done"
	EventError       = "error"
	EventPing        = "ping"

	// EventRetry is synthesized client-side from a retry: directive after
	// the advertised delay. The server never sends it.
	EventRetry = "retry"
)

// StreamEvent is one decoded record from the live-update stream.
//
// Type is always set for delivered events. Data holds the payload when it
// parsed as JSON; when parsing failed, Raw holds the original text and Data
// is nil. A payload glitch never suppresses a type.
//
// Retry carries a server retry hint when the frame included a retry: field
// and is zero otherwise. It is a scheduling directive, not part of the
// event taxonomy: the session layer turns it into a synthetic EventRetry
// event after the delay.
type StreamEvent struct {
	Type  string
	Data  json.RawMessage
	Raw   string
	Retry time.Duration
}

// Terminal reports whether the event semantically ends a request.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// StatusPayload is the payload of a progress event.
type StatusPayload struct {
	Message string `json:"message"`
}

// ErrorPayload is the payload of a terminal error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DonePayload is the payload of a terminal success event. Summary is the
// rendered answer; older deployments put it in Message instead. TableSample
// and ChartData are optional artifacts.
type DonePayload struct {
	Summary     string           `json:"summary"`
	Message     string           `json:"message"`
	TableSample []map[string]any `json:"tableSample"`
	ChartData   *ChartData       `json:"chartData"`
	Metrics     map[string]any   `json:"metrics"`
}

// ChartData describes a chart artifact attached to a terminal success event.
type ChartData struct {
	Kind   string        `json:"kind"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}

// ChartSeries is one named series of numeric values.
type ChartSeries struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// HasSeries reports whether the chart carries at least one numeric value.
func (c ChartData) HasSeries() bool {
	for _, s := range c.Series {
		if len(s.Data) > 0 {
			return true
		}
	}
	return false
}

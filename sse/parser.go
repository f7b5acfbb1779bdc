package sse

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event is one parsed frame.
//
// Type defaults to "message" when the frame has data but no event: line.
// Data holds the payload when it parsed as JSON; otherwise Raw holds the
// unparsed text. Retry carries the retry: directive when present. A frame
// made only of comments or unrecognized lines parses to an empty Event.
type Event struct {
	Type  string
	Data  json.RawMessage
	Raw   string
	Retry time.Duration
}

// Empty reports whether the frame yielded neither an event nor a retry
// directive.
func (e Event) Empty() bool {
	return e.Type == "" && e.Retry == 0
}

// Parse extracts an Event from one raw frame. event: sets the type; data:
// lines join with a line break in order; retry: must be a non-negative
// integer millisecond delay, anything else is ignored; comment lines
// (leading ':') and unrecognized fields are skipped. A malformed payload
// never invalidates the frame: the event is still produced with Raw set.
func Parse(frame string) Event {
	var (
		eventType string
		dataLines []string
		hasData   bool
		retry     time.Duration
	)

	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value := splitField(line)
		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "retry":
			if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && ms >= 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	evt := Event{Retry: retry}
	switch {
	case hasData:
		if eventType == "" {
			eventType = "message"
		}
		evt.Type = eventType
		payload := strings.Join(dataLines, "\n")
		if payload != "" {
			if json.Valid([]byte(payload)) {
				evt.Data = json.RawMessage(payload)
			} else {
				evt.Raw = payload
			}
		}
	case eventType != "":
		evt.Type = eventType
	}
	return evt
}

// splitField splits a field line at the first colon and strips a single
// leading space from the value. A line without a colon is all field name.
func splitField(line string) (field, value string) {
	i := strings.IndexByte(line, ':')
	if i == -1 {
		return line, ""
	}
	field, value = line[:i], line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}

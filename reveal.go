package pulse

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"
)

// RevealConfig controls paced disclosure of a terminal summary. Pacing is a
// presentation refinement layered on already-fully-received text: the
// summary is appended to the placeholder in fixed-size word chunks on an
// interval, the table appears once disclosure completes, and the chart a
// further delay after the table. All pacing timers belong to the owning
// session's registry, so cancellation, a replacing send or teardown stops
// them before they can mutate a concluded conversation.
type RevealConfig struct {
	ChunkWords int           // words disclosed per tick; zero disables pacing
	Interval   time.Duration // delay between ticks; zero disables pacing
	ChartDelay time.Duration // extra delay between table and chart
}

func (rc RevealConfig) enabled() bool {
	return rc.ChunkWords > 0 && rc.Interval > 0
}

// startReveal schedules disclosure of a received summary. Runs with c.mu
// held; it only schedules work on the session's timer registry.
func (c *Chat) startReveal(s *session, p DonePayload) {
	chunks := wordChunks(doneSummary(p), c.reveal.ChunkWords)
	c.scheduleStep(s, p, chunks, 0)
}

func (c *Chat) scheduleStep(s *session, p DonePayload, chunks []string, i int) {
	s.timers.After(c.reveal.Interval, func() {
		c.revealStep(s, p, chunks, i)
	})
}

// revealStep appends chunk i to the placeholder. After the last chunk it
// resolves the table step and, only then, schedules the chart step.
func (c *Chat) revealStep(s *session, p DonePayload, chunks []string, i int) {
	now := time.Now()

	c.mu.Lock()
	if c.epochs[s.convID] != s.epoch {
		c.mu.Unlock()
		return
	}
	conv := c.convs[s.convID]
	next := conv
	changed := false

	if i < len(chunks) {
		cur, found := conv.Find(s.placeholderID)
		tm, isText := cur.(TextMessage)
		if !found || !isText {
			c.mu.Unlock()
			return
		}
		tm.Text += chunks[i]
		next, changed = conv.WithReplaced(s.placeholderID, tm)
	}

	if i+1 < len(chunks) {
		c.scheduleStep(s, p, chunks, i+1)
	} else {
		// Disclosure complete. The table step resolves here even when it
		// appends nothing; the chart step never runs ahead of it.
		if len(p.TableSample) > 0 {
			next = next.WithMessage(TableMessage{ID: uuid.NewString(), Rows: p.TableSample, Timestamp: now})
			changed = true
		}
		if p.ChartData != nil && p.ChartData.HasSeries() {
			chart := *p.ChartData
			s.timers.After(c.reveal.ChartDelay, func() {
				c.revealChart(s, chart)
			})
		} else if c.active[s.convID] == s {
			delete(c.active, s.convID)
		}
	}

	if changed {
		next.UpdatedAt = now
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

// revealChart appends the chart message and concludes the session.
func (c *Chat) revealChart(s *session, chart ChartData) {
	now := time.Now()

	c.mu.Lock()
	if c.epochs[s.convID] != s.epoch {
		c.mu.Unlock()
		return
	}
	conv := c.convs[s.convID]
	next := conv.WithMessage(ChartMessage{ID: uuid.NewString(), Chart: chart, Timestamp: now})
	next.UpdatedAt = now
	c.convs[s.convID] = next
	if c.active[s.convID] == s {
		delete(c.active, s.convID)
	}
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(next)
	}
	c.persist(next)
}

// wordChunks splits s into chunks of n words using Unicode word boundaries.
// Spacing between words travels with the chunk that follows it, so
// concatenating the chunks yields s unchanged.
func wordChunks(s string, n int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	words := 0
	state := -1
	rest := s
	for len(rest) > 0 {
		var seg string
		seg, rest, state = uniseg.FirstWordInString(rest, state)
		b.WriteString(seg)
		if strings.TrimSpace(seg) != "" {
			words++
			if words == n {
				chunks = append(chunks, b.String())
				b.Reset()
				words = 0
			}
		}
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

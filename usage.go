package pulse

import (
	"sync"
	"time"
)

// UsageCounter tracks how many questions completed successfully today.
//
// The count resets when the calendar day changes, increases monotonically
// within a day, and is clamped at the limit. Recording is keyed by request
// id so a duplicated terminal event for the same request can never
// double-count. Errors and cancellations are never recorded.
type UsageCounter struct {
	mu      sync.Mutex
	limit   int
	dateKey string
	count   int
	counted map[string]struct{}
}

// NewUsageCounter returns a counter with the given daily limit.
// A limit of zero disables the Allow gate.
func NewUsageCounter(limit int) *UsageCounter {
	return &UsageCounter{limit: limit}
}

// Allow reports whether another question may be asked today.
func (u *UsageCounter) Allow(now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll(now)
	return u.limit <= 0 || u.count < u.limit
}

// Record counts one successful request. It returns false when the request
// id was already counted today or the count is clamped at the limit.
func (u *UsageCounter) Record(now time.Time, requestID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll(now)
	if _, ok := u.counted[requestID]; ok {
		return false
	}
	u.counted[requestID] = struct{}{}
	if u.limit > 0 && u.count >= u.limit {
		return false
	}
	u.count++
	return true
}

// Count returns today's count.
func (u *UsageCounter) Count(now time.Time) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll(now)
	return u.count
}

// Limit returns the configured daily limit.
func (u *UsageCounter) Limit() int { return u.limit }

// roll resets the counter when the day changes. Callers hold u.mu.
func (u *UsageCounter) roll(now time.Time) {
	key := now.Format("2006-01-02")
	if key != u.dateKey {
		u.dateKey = key
		u.count = 0
		u.counted = make(map[string]struct{})
	}
}

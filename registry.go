package pulse

import (
	"sync"
	"time"
)

// TimerRegistry owns the delayed callbacks scheduled during one stream
// session's lifetime. Stop cancels every outstanding timer and suppresses
// callbacks that already fired but have not yet run, so nothing executes
// after teardown. The zero value is ready to use.
type TimerRegistry struct {
	mu      sync.Mutex
	stopped bool
	seq     int
	timers  map[int]*time.Timer
}

// NewTimerRegistry returns an empty registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{}
}

// After schedules fn to run after d. It is a no-op on a stopped registry.
func (r *TimerRegistry) After(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.timers == nil {
		r.timers = make(map[int]*time.Timer)
	}
	r.seq++
	id := r.seq
	r.timers[id] = time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		delete(r.timers, id)
		r.mu.Unlock()
		fn()
	})
}

// Stop cancels all outstanding timers. It is idempotent and safe to call
// from any goroutine; callbacks racing with Stop observe the stopped flag
// and return without running.
func (r *TimerRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

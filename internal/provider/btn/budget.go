package btn

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCallsPerHour is the API's documented call limit.
const DefaultCallsPerHour = 150

// callBudget counts API calls in fixed one-hour windows.
type callBudget struct {
	clock clockwork.Clock
	limit int

	mu        sync.Mutex
	count     int
	resetTime time.Time
}

func newCallBudget(clock clockwork.Clock, limit int) *callBudget {
	return &callBudget{clock: clock, limit: limit}
}

// take records a call and reports whether it fits in the current window.
func (b *callBudget) take() bool {
	if b.limit <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if now.After(b.resetTime) {
		b.count = 0
		b.resetTime = now.Add(time.Hour)
	}

	if b.count >= b.limit {
		return false
	}
	b.count++
	return true
}

// Package retrytest provides helpers for testing code that uses retry policies
// without waiting for real backoff delays.
package retrytest

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock records the backoff waits requested by retry policies and fires them immediately.
type Clock struct {
	mu    sync.Mutex
	waits []time.Duration
}

// NewTimer returns a backoff.Timer bound to the clock. Use it as Policy.NewTimer.
func (c *Clock) NewTimer() backoff.Timer {
	return &instantTimer{clock: c, ch: make(chan time.Time, 1)}
}

// Waits returns the requested wait durations in order.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

type instantTimer struct {
	clock *Clock
	ch    chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.clock.mu.Lock()
	t.clock.waits = append(t.clock.waits, d)
	t.clock.mu.Unlock()
	select {
	case t.ch <- time.Now():
	default:
	}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.ch
}

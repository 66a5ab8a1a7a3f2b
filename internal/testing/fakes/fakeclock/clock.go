// Package fakeclock provides a controllable Clock implementation for testing.
package fakeclock

import (
	"sync"
	"time"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Clock is a fake clock that can be controlled in tests.
// Sleep never blocks; it advances the clock and records the requested duration
// so settle delays can be asserted.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
	slept   []time.Duration
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// New creates a new fake clock initialized to the given time.
func New(initial time.Time) *Clock {
	return &Clock{current: initial}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Sleep records d and advances the clock by it.
func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	c.Advance(d)
}

// Slept returns every duration passed to Sleep, in order.
func (c *Clock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

// After returns a channel that fires when Advance moves past now+d.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.current.Add(d)

	if !c.current.Before(deadline) {
		ch <- c.current
		return ch
	}

	c.waiters = append(c.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

// NewTicker returns a ticker that only fires through Tick.
func (c *Clock) NewTicker(d time.Duration) ports.Ticker {
	return &Ticker{
		clock: c,
		ch:    make(chan time.Time, 1),
	}
}

// Advance moves the clock forward by duration d, firing any waiters.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
	now := c.current

	var remaining []waiter
	for _, w := range c.waiters {
		if now.Before(w.deadline) {
			remaining = append(remaining, w)
			continue
		}
		select {
		case w.ch <- now:
		default:
		}
	}
	c.waiters = remaining
}

// Ticker is a manually driven ports.Ticker.
type Ticker struct {
	clock   *Clock
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

// C returns the channel on which ticks are delivered.
func (t *Ticker) C() <-chan time.Time {
	return t.ch
}

// Stop turns off the ticker.
func (t *Ticker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Tick sends one tick unless the ticker is stopped.
func (t *Ticker) Tick() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()

	if stopped {
		return
	}
	select {
	case t.ch <- t.clock.Now():
	default:
	}
}

var _ ports.Clock = (*Clock)(nil)

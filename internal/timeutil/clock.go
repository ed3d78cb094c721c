// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker that delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers "ticks" of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off a ticker.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// After waits for the duration to elapse and then sends the current time.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*mockWaiter
}

// mockWaiter backs both After channels (one-shot) and tickers (periodic).
type mockWaiter struct {
	mu       sync.Mutex
	ch       chan time.Time
	next     time.Time
	interval time.Duration // zero for one-shot
	done     bool
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the mock clock to a specific time without firing waiters.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by d and fires any due waiters.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	waiters := append([]*mockWaiter(nil), c.waiters...)
	c.mu.Unlock()

	for _, w := range waiters {
		w.fire(now)
	}
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives the time once the clock has been
// advanced past d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.addWaiter(d, 0).ch
}

// NewTicker creates a ticker driven by Advance.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	return c.addWaiter(d, d)
}

func (c *MockClock) addWaiter(d, interval time.Duration) *mockWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &mockWaiter{
		ch:       make(chan time.Time, 1),
		next:     c.now.Add(d),
		interval: interval,
	}
	c.waiters = append(c.waiters, w)
	return w
}

// C returns the waiter channel.
func (w *mockWaiter) C() <-chan time.Time {
	return w.ch
}

// Stop prevents further deliveries.
func (w *mockWaiter) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
}

func (w *mockWaiter) fire(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done || now.Before(w.next) {
		return
	}
	select {
	case w.ch <- now:
	default:
	}
	if w.interval == 0 {
		w.done = true
		return
	}
	w.next = now.Add(w.interval)
}

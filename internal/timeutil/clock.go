// Package timeutil holds the clock shared by stuck detection, mission timing
// and the listeners' periodic work, so replay and tests can drive time.
package timeutil

import (
	"slices"
	"sync"
	"time"
)

// Clock is the subset of the time package the autopilot depends on.
// RealClock durations use the monotonic reading in time.Time, so wall-clock
// steps never stretch or shrink a stuck interval.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when told to. Replay sets it to each packet's
// capture time; tests advance it by hand.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*mockTicker
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Set moves the clock to t and fires every ticker that has come due. Times
// before the current one are ignored.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	if t.Before(c.now) {
		c.mu.Unlock()
		return
	}
	c.now = t
	due := slices.Clone(c.tickers)
	c.mu.Unlock()

	for _, tk := range due {
		tk.fire(t)
	}
}

func (c *MockClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// NewTicker returns a ticker that fires at most once per Set, with the
// same one-slot buffering as time.Ticker.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	tk := &mockTicker{clock: c, ch: make(chan time.Time, 1), every: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, tk)
	return tk
}

func (c *MockClock) remove(tk *mockTicker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickers = slices.DeleteFunc(c.tickers, func(t *mockTicker) bool { return t == tk })
}

type mockTicker struct {
	clock *MockClock
	ch    chan time.Time
	every time.Duration

	mu   sync.Mutex
	next time.Time
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() { t.clock.remove(t) }

func (t *mockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Before(t.next) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.next = now.Add(t.every)
}

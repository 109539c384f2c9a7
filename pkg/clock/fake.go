package clock

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// FakeClock is a deterministic clock for testing. Time only advances
// when Advance() or AdvanceTo() is called; goroutines blocked in
// After/Sleep/NewTimer are woken when their deadline is reached.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
	nextID  uint64

	// waiting counts goroutines currently blocked on the clock, for
	// BlockUntilWaiters in tests.
	waiting atomic.Int64
}

// NewFakeClock creates a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep blocks until the clock advances past the wake time.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// After returns a channel that receives when d has elapsed.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	c.mu.Lock()
	if d <= 0 {
		ch <- c.now
		c.mu.Unlock()
		return ch
	}
	c.addWaiter(c.now.Add(d), ch)
	c.mu.Unlock()

	c.waiting.Add(1)
	return ch
}

// NewTimer creates a Timer that fires after d.
func (c *FakeClock) NewTimer(d time.Duration) Timer {
	ft := &fakeTimer{clock: c, ch: make(chan time.Time, 1)}

	c.mu.Lock()
	if d <= 0 {
		ft.ch <- c.now
		c.mu.Unlock()
		return ft
	}
	ft.id = c.addWaiter(c.now.Add(d), ft.ch)
	c.mu.Unlock()

	c.waiting.Add(1)
	return ft
}

// Advance moves the clock forward by d, firing any timers that expire.
func (c *FakeClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves the clock to t, firing any timers that expire.
func (c *FakeClock) AdvanceTo(t time.Time) {
	c.mu.Lock()
	if t.Before(c.now) {
		c.mu.Unlock()
		return
	}
	c.now = t

	var fired []*fakeWaiter
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w.deadline.After(t) {
			remaining = append(remaining, w)
		} else {
			fired = append(fired, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	sort.Slice(fired, func(i, j int) bool {
		if fired[i].deadline.Equal(fired[j].deadline) {
			return fired[i].id < fired[j].id
		}
		return fired[i].deadline.Before(fired[j].deadline)
	})

	for _, w := range fired {
		select {
		case w.ch <- w.deadline:
		default:
		}
		c.waiting.Add(-1)
	}
}

// BlockUntilWaiters blocks until at least n goroutines are waiting on
// the clock. Used in tests to ensure goroutines reached their wait
// points before advancing time.
func (c *FakeClock) BlockUntilWaiters(n int) {
	for int(c.waiting.Load()) < n {
		time.Sleep(time.Microsecond)
	}
}

// WaiterCount returns the number of goroutines waiting on the clock.
func (c *FakeClock) WaiterCount() int {
	return int(c.waiting.Load())
}

// addWaiter registers a waiter. Caller must hold c.mu.
func (c *FakeClock) addWaiter(deadline time.Time, ch chan time.Time) uint64 {
	c.nextID++
	c.waiters = append(c.waiters, &fakeWaiter{
		deadline: deadline,
		ch:       ch,
		id:       c.nextID,
	})
	return c.nextID
}

// removeWaiter unregisters a waiter by ID, reporting whether it was
// still pending. Caller must hold c.mu.
func (c *FakeClock) removeWaiter(id uint64) bool {
	for i, w := range c.waiters {
		if w.id == id {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// fakeWaiter is a goroutine waiting for a specific fake time.
type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	id       uint64
}

// fakeTimer implements Timer for FakeClock.
type fakeTimer struct {
	clock   *FakeClock
	ch      chan time.Time
	id      uint64
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true

	t.clock.mu.Lock()
	removed := t.clock.removeWaiter(t.id)
	t.clock.mu.Unlock()

	if removed {
		t.clock.waiting.Add(-1)
	}
	return removed
}

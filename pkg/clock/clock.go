// Package clock provides the time abstraction used by the memory
// monitor's sampling loop.
//
// In production, use Real(). In tests, use NewFakeClock() to drive the
// loop deterministically with Advance().
package clock

import "time"

// Clock provides time operations that can be real or simulated.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)

	// After waits for the duration to elapse and then sends the
	// current time on the returned channel.
	After(d time.Duration) <-chan time.Time

	// NewTimer creates a Timer that sends the current time on its
	// channel after at least duration d.
	NewTimer(d time.Duration) Timer
}

// Timer wraps time.Timer functionality.
type Timer interface {
	// C returns the channel on which the time is delivered.
	C() <-chan time.Time

	// Stop prevents the Timer from firing. It returns true if the
	// call stops the timer, false if it already fired or was stopped.
	Stop() bool
}

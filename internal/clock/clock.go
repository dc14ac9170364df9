// Package clock abstracts the timed waits used by countdowns, pacing and retries
// so they can be driven deterministically in tests.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock tells the time and suspends the caller for a duration.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

var wall = clockwork.NewRealClock()

// Real sleeps on the wall clock.
type Real struct{}

// Now returns the wall-clock time.
func (Real) Now() time.Time {
	return wall.Now()
}

// Sleep waits for d or until ctx is cancelled.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := wall.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// Fake is a virtual clock for synchronous callers: Sleep advances the
// underlying clockwork fake by d and returns at once, since there is no
// second goroutine to call Advance. Every requested sleep is recorded.
type Fake struct {
	fc    clockwork.FakeClock
	start time.Time

	mu     sync.Mutex
	sleeps []time.Duration

	// OnSleep, when set, runs before each sleep returns. Tests use it to
	// observe state at suspension points or to block a sleeper.
	OnSleep func(d time.Duration)
}

// NewFake creates a Fake clock.
func NewFake() *Fake {
	fc := clockwork.NewFakeClock()
	return &Fake{fc: fc, start: fc.Now()}
}

// Now returns the virtual time.
func (f *Fake) Now() time.Time {
	return f.fc.Now()
}

// Sleep records d, advances virtual time and returns immediately.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.fc.Advance(d)
	f.sleeps = append(f.sleeps, d)
	hook := f.OnSleep
	f.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Elapsed returns the total virtual time slept.
func (f *Fake) Elapsed() time.Duration {
	return f.fc.Since(f.start)
}

// Sleeps returns a copy of every recorded sleep duration in order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

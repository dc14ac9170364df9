// Package retry re-runs failing operations with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ayusman/nofacetouch/internal/clock"
)

// Config holds the configuration for retry logic.
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultConfig returns the retry configuration used for training ticks.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		BaseDelay:       50 * time.Millisecond,
		MaxDelay:        time.Second,
		BackoffMultiple: 2.0,
	}
}

// BackOff returns a deterministic exponential policy (no jitter, no elapsed
// time limit) that stops after MaxRetries retries.
func (c Config) BackOff(clk clock.Clock) backoff.BackOff {
	if clk == nil {
		clk = clock.Real{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.BaseDelay
	b.Multiplier = math.Max(c.BackoffMultiple, 1)
	b.MaxInterval = c.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Clock = clk
	b.Reset()

	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// Logger reports retry attempts.
type Logger func(attempt int, delay time.Duration, err error)

// Do calls fn until it succeeds, the retries are exhausted or ctx is done.
// Delays are taken on clk so callers can control time. The last error from
// fn is returned when every attempt fails.
func Do(ctx context.Context, cfg Config, clk clock.Clock, log Logger, fn func(attempt int) error) error {
	if clk == nil {
		clk = clock.Real{}
	}

	attempt := 0
	op := func() error {
		err := fn(attempt)
		attempt++
		return err
	}

	var notify backoff.Notify
	if log != nil {
		notify = func(err error, delay time.Duration) {
			log(attempt, delay, err)
		}
	}

	b := backoff.WithContext(cfg.BackOff(clk), ctx)
	return backoff.RetryNotifyWithTimer(op, b, notify, newSleepTimer(ctx, clk))
}

// sleepTimer is a backoff.Timer that waits on a clock.Clock inside Start, so
// a fake clock makes retries instant.
type sleepTimer struct {
	ctx context.Context
	clk clock.Clock
	ch  chan time.Time
}

func newSleepTimer(ctx context.Context, clk clock.Clock) *sleepTimer {
	return &sleepTimer{ctx: ctx, clk: clk, ch: make(chan time.Time, 1)}
}

func (t *sleepTimer) Start(d time.Duration) {
	// On cancel nothing is sent and the retry loop sees ctx.Done instead
	if err := t.clk.Sleep(t.ctx, d); err == nil {
		t.ch <- t.clk.Now()
	}
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time {
	return t.ch
}

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultPerSecond stays below the provider's 30 calls/second ceiling.
	DefaultPerSecond = 20

	// DefaultPerMinute stays below the provider's 60 calls/minute ceiling.
	DefaultPerMinute = 50
)

// Limiter gates outbound provider calls with two fixed windows: one second
// and one minute. Calls are never dropped; Acquire blocks until both windows
// have capacity. One Limiter is shared by every worker of a process.
type Limiter struct {
	perSecond int
	perMinute int
	logger    arbor.ILogger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	secondStart time.Time
	secondCount int
	minuteStart time.Time
	minuteCount int
	waits       int64

	logSometimes rate.Sometimes
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for saturation warnings.
func WithLogger(logger arbor.ILogger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithClock replaces the time source and the blocking wait. Tests use it to
// drive the windows without sleeping.
func WithClock(now func() time.Time, wait func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
		if wait != nil {
			l.wait = wait
		}
	}
}

// New creates a limiter. Non-positive ceilings fall back to the defaults.
func New(perSecond, perMinute int, opts ...Option) *Limiter {
	if perSecond <= 0 {
		perSecond = DefaultPerSecond
	}
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}

	l := &Limiter{
		perSecond:    perSecond,
		perMinute:    perMinute,
		now:          time.Now,
		wait:         sleep,
		logSometimes: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}

	start := l.now()
	l.secondStart = start
	l.minuteStart = start
	return l
}

// Acquire blocks until a call for operation may proceed. It returns early
// only when ctx is done, with ctx.Err().
func (l *Limiter) Acquire(ctx context.Context, operation string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		if now.Sub(l.secondStart) >= time.Second {
			l.secondStart = now
			l.secondCount = 0
		}
		if now.Sub(l.minuteStart) >= time.Minute {
			l.minuteStart = now
			l.minuteCount = 0
		}

		if l.secondCount < l.perSecond && l.minuteCount < l.perMinute {
			l.secondCount++
			l.minuteCount++
			l.mu.Unlock()
			return nil
		}

		var delay time.Duration
		window := "second"
		if l.minuteCount >= l.perMinute {
			delay = l.minuteStart.Add(time.Minute).Sub(now)
			window = "minute"
		}
		if l.secondCount >= l.perSecond {
			if d := l.secondStart.Add(time.Second).Sub(now); d > delay {
				delay = d
				window = "second"
			}
		}
		if delay <= 0 {
			delay = time.Millisecond
		}
		l.waits++
		l.mu.Unlock()

		if l.logger != nil {
			l.logSometimes.Do(func() {
				l.logger.Debug().
					Str("operation", operation).
					Str("window", window).
					Dur("delay", delay).
					Msg("Rate limit window full, waiting")
			})
		}

		if err := l.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// Stats is a snapshot of limiter counters.
type Stats struct {
	SecondCount int   `json:"second_count"`
	MinuteCount int   `json:"minute_count"`
	PerSecond   int   `json:"per_second"`
	PerMinute   int   `json:"per_minute"`
	Waits       int64 `json:"waits"`
}

// Stats returns the current window counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		SecondCount: l.secondCount,
		MinuteCount: l.minuteCount,
		PerSecond:   l.perSecond,
		PerMinute:   l.perMinute,
		Waits:       l.waits,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package ratelimit throttles outbound upstream API calls to a steady
// request rate using a sliding one-second window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config tunes the limiter. Now and Sleep are injectable for deterministic
// tests; nil values use the real clock.
type Config struct {
	// MaxPerSecond caps requests admitted in any rolling window. Default: 9.
	MaxPerSecond int

	// Window is the rolling interval. Default: 1s.
	Window time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Stats reports cumulative limiter activity.
type Stats struct {
	TotalRequests int64         `json:"total_requests"`
	TotalWait     time.Duration `json:"total_wait"`
	AvgWait       time.Duration `json:"avg_wait"`
	MaxPerSecond  int           `json:"max_per_second"`
}

// Limiter admits at most MaxPerSecond requests in any rolling window.
// Safe for concurrent use; callers blocked on the window are serialized,
// so every waiter is eventually admitted.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	times  []time.Time
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	totalRequests int64
	totalWait     time.Duration
}

// New creates a Limiter, applying defaults for zero config fields.
func New(cfg Config) *Limiter {
	if cfg.MaxPerSecond <= 0 {
		cfg.MaxPerSecond = 9
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Limiter{
		max:    cfg.MaxPerSecond,
		window: cfg.Window,
		times:  make([]time.Time, 0, cfg.MaxPerSecond+1),
		now:    cfg.Now,
		sleep:  cfg.Sleep,
	}
}

// Wait blocks until admitting one more request would not exceed the rate,
// then records the request. It returns the time spent waiting. The only
// error it can return is a context error raised while sleeping.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	var waited time.Duration
	if len(l.times) >= l.max {
		oldest := l.times[0]
		wait := l.window - now.Sub(oldest)
		if wait > 0 {
			zap.L().Debug("rate limit reached, throttling",
				zap.Duration("wait", wait),
				zap.Int("max_per_second", l.max),
			)
			if err := l.sleep(ctx, wait); err != nil {
				return 0, err
			}
			waited = wait
			now = l.now()
			l.prune(now)
		}
	}

	l.times = append(l.times, now)
	l.totalRequests++
	l.totalWait += waited
	return waited, nil
}

// prune drops recorded requests older than the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.times) && !l.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.times = append(l.times[:0], l.times[i:]...)
	}
}

// Stats returns cumulative request and wait counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		TotalRequests: l.totalRequests,
		TotalWait:     l.totalWait,
		MaxPerSecond:  l.max,
	}
	if l.totalRequests > 0 {
		s.AvgWait = l.totalWait / time.Duration(l.totalRequests)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

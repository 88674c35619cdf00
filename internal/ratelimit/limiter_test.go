package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.Advance(d)
	return nil
}

func newTestLimiter(max int) (*Limiter, *fakeClock) {
	clk := newFakeClock()
	l := New(Config{MaxPerSecond: max, Now: clk.Now, Sleep: clk.Sleep})
	return l, clk
}

func TestWait_UnderLimit_NoWait(t *testing.T) {
	l, _ := newTestLimiter(5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		waited, err := l.Wait(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if waited != 0 {
			t.Errorf("call %d: waited %v, want 0", i+1, waited)
		}
	}
}

func TestWait_OverLimit_Throttles(t *testing.T) {
	l, _ := newTestLimiter(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// 4th request within the same window must observe a positive wait.
	waited, err := l.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited <= 0 {
		t.Errorf("4th call in window waited %v, want > 0", waited)
	}
}

func TestWait_SpacedCalls_NeverThrottle(t *testing.T) {
	l, clk := newTestLimiter(3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		waited, err := l.Wait(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if waited != 0 {
			t.Errorf("call %d: waited %v, want 0", i+1, waited)
		}
		clk.Advance(time.Second)
	}
}

func TestWait_WindowSlides(t *testing.T) {
	l, clk := newTestLimiter(2)
	ctx := context.Background()

	l.Wait(ctx) //nolint:errcheck
	l.Wait(ctx) //nolint:errcheck

	// After the window passes, capacity is restored.
	clk.Advance(1100 * time.Millisecond)
	waited, err := l.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited != 0 {
		t.Errorf("waited %v after window elapsed, want 0", waited)
	}
}

func TestStats(t *testing.T) {
	l, _ := newTestLimiter(2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := l.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	s := l.Stats()
	if s.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", s.TotalRequests)
	}
	if s.TotalWait <= 0 {
		t.Errorf("TotalWait = %v, want > 0", s.TotalWait)
	}
	if s.AvgWait != s.TotalWait/4 {
		t.Errorf("AvgWait = %v, want %v", s.AvgWait, s.TotalWait/4)
	}
	if s.MaxPerSecond != 2 {
		t.Errorf("MaxPerSecond = %d, want 2", s.MaxPerSecond)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	clk := newFakeClock()
	l := New(Config{
		MaxPerSecond: 1,
		Now:          clk.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		},
	})

	ctx := context.Background()
	if _, err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Wait(ctx); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWait_Concurrent(t *testing.T) {
	l := New(Config{MaxPerSecond: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Wait(ctx); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := l.Stats().TotalRequests; got != 100 {
		t.Errorf("TotalRequests = %d, want 100", got)
	}
}

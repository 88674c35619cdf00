package analytics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voltadata/metricsync/internal/ratelimit"
	"github.com/voltadata/metricsync/internal/resilience"
)

type scriptedClient struct {
	calls int
	errs  []error
	rep   *Report
}

func (c *scriptedClient) RunReport(_ context.Context, _ ReportRequest) (*Report, error) {
	c.calls++
	if c.calls <= len(c.errs) {
		return nil, c.errs[c.calls-1]
	}
	return c.rep, nil
}

func noSleepRetry(maxAttempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Multiplier:  1,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func TestThrottled_RetriesTransient(t *testing.T) {
	inner := &scriptedClient{
		errs: []error{
			resilience.NewTransientError(errors.New("503"), 503),
			resilience.NewTransientError(errors.New("429"), 429),
		},
		rep: &Report{Total: 7},
	}
	limiter := ratelimit.New(ratelimit.Config{MaxPerSecond: 100})
	tc := NewThrottled(inner, limiter, noSleepRetry(3))

	rep, err := tc.RunReport(context.Background(), ReportRequest{Date: "2025-01-05", Metric: MetricSessions})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Total != 7 {
		t.Errorf("total = %v, want 7", rep.Total)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}

	// Every attempt passes the limiter, retries included.
	if got := limiter.Stats().TotalRequests; got != 3 {
		t.Errorf("limiter requests = %d, want 3", got)
	}
}

func TestThrottled_PermanentFailsImmediately(t *testing.T) {
	inner := &scriptedClient{
		errs: []error{resilience.NewPermanentError(errors.New("401"), 401)},
	}
	limiter := ratelimit.New(ratelimit.Config{MaxPerSecond: 100})
	tc := NewThrottled(inner, limiter, noSleepRetry(5))

	_, err := tc.RunReport(context.Background(), ReportRequest{Date: "2025-01-05", Metric: MetricSessions})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestReplay_ServesFixtures(t *testing.T) {
	dir := t.TempDir()
	fixture := `{
		"sessions||commodity": {"total": 120},
		"sessions|sessionChannel|commodity": {
			"total": 120,
			"rows": [{"dimension": "organic", "value": 80}, {"dimension": "paid", "value": 40}]
		}
	}`
	if err := os.WriteFile(filepath.Join(dir, "2025-01-05.json"), []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewReplay(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	rep, err := c.RunReport(ctx, ReportRequest{Date: "2025-01-05", Metric: MetricSessions, Segment: SegmentCommodity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Total != 120 {
		t.Errorf("total = %v, want 120", rep.Total)
	}

	rep, err = c.RunReport(ctx, ReportRequest{
		Date: "2025-01-05", Metric: MetricSessions,
		Dimension: DimensionChannel, Segment: SegmentCommodity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rep.Rows))
	}

	// Unknown slice within a known date: empty report, no error.
	rep, err = c.RunReport(ctx, ReportRequest{Date: "2025-01-05", Metric: MetricFunnelStarts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Rows) != 0 || rep.Total != 0 {
		t.Errorf("expected empty report, got %+v", rep)
	}

	// Missing date: permanent error.
	_, err = c.RunReport(ctx, ReportRequest{Date: "2024-01-01", Metric: MetricSessions})
	if !resilience.IsPermanent(err) {
		t.Errorf("missing date should be permanent, got %v", err)
	}
}

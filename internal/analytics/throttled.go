package analytics

import (
	"context"

	"go.uber.org/zap"

	"github.com/voltadata/metricsync/internal/ratelimit"
	"github.com/voltadata/metricsync/internal/resilience"
)

// Throttled decorates a Client so that every report request first passes
// the rate limiter and is retried on transient failures. The limiter is
// consulted before each attempt, so retries also count against the rate.
type Throttled struct {
	inner   Client
	limiter *ratelimit.Limiter
	retry   resilience.RetryConfig
}

// NewThrottled wraps inner with rate limiting and retry.
func NewThrottled(inner Client, limiter *ratelimit.Limiter, retry resilience.RetryConfig) *Throttled {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("run_report")
	}
	return &Throttled{inner: inner, limiter: limiter, retry: retry}
}

func (t *Throttled) RunReport(ctx context.Context, req ReportRequest) (*Report, error) {
	return resilience.DoVal(ctx, t.retry, func(ctx context.Context) (*Report, error) {
		waited, err := t.limiter.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if waited > 0 {
			zap.L().Debug("upstream call throttled",
				zap.String("metric", req.Metric),
				zap.String("date", req.Date),
				zap.Duration("waited", waited),
			)
		}
		return t.inner.RunReport(ctx, req)
	})
}

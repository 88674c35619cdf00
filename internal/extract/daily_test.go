package extract

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/cache"
	"github.com/voltadata/metricsync/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "extract.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestDailyJob_Run(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fake := newFakeAnalytics()

	fake.set("2025-01-09", analytics.MetricSessions, "", analytics.SegmentCommodity,
		&analytics.Report{Total: 200})
	fake.set("2025-01-09", analytics.MetricSessions, "", analytics.SegmentEnergy,
		&analytics.Report{Total: 100})
	fake.set("2025-01-09", analytics.MetricConversions, "", analytics.SegmentAll,
		&analytics.Report{Total: 10})
	fake.set("2025-01-09", analytics.MetricFunnelStarts, "", analytics.SegmentAll,
		&analytics.Report{Total: 50})
	fake.set("2025-01-09", analytics.MetricConversions, analytics.DimensionProduct, analytics.SegmentAll,
		&analytics.Report{Rows: []analytics.Row{{Dimension: "tariff-basic", Value: 10}}})

	reg := NewRegistry(fake, nil)
	mem := cache.NewMemory(cache.Config{})
	job := NewDailyJob(fake, st, reg, mem)
	job.now = fixedNow

	// Empty date defaults to yesterday.
	m, err := job.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-09", m.Date)
	assert.Equal(t, 200, m.CommoditySessions)
	assert.Equal(t, 100, m.EnergySessions)
	assert.Equal(t, 10, m.Conversions)
	assert.Equal(t, 50, m.FunnelStarts)
	assert.Equal(t, 5.0, m.CRCommodity)
	assert.Equal(t, 10.0, m.CREnergy)
	assert.Equal(t, 20.0, m.CRFunnel)

	stored, err := st.GetDailyMetrics(ctx, "2025-01-09")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 200, stored.CommoditySessions)

	// Zero-delay satellites refreshed alongside the daily row.
	rows, err := st.SatelliteRows(ctx, store.TableProductsPerformance, "2025-01-09")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tariff-basic", rows[0].Dimension)

	// Delayed satellites are not touched by the daily job.
	cov, err := st.TableCoverage(ctx, store.TableSessionsByChannel)
	require.NoError(t, err)
	assert.Zero(t, cov.Count)

	cached, err := mem.Get(ctx, "2025-01-09")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 10, cached.Conversions)
}

func TestDailyJob_ZeroTrafficDay(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fake := newFakeAnalytics()

	job := NewDailyJob(fake, st, NewRegistry(fake, nil), cache.Noop{})
	job.now = fixedNow

	// No canned reports: every total is 0, rates stay 0 instead of NaN.
	m, err := job.Run(ctx, "2025-01-05")
	require.NoError(t, err)
	assert.Zero(t, m.CommoditySessions)
	assert.Zero(t, m.CRCommodity)
	assert.Zero(t, m.CRFunnel)

	stored, err := st.GetDailyMetrics(ctx, "2025-01-05")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestDailyJob_RejectsBadDate(t *testing.T) {
	st := newTestStore(t)
	fake := newFakeAnalytics()
	job := NewDailyJob(fake, st, nil, cache.Noop{})

	_, err := job.Run(context.Background(), "05.01.2025")
	require.Error(t, err)
}

func TestDailyJob_SatelliteFailureDoesNotFailRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// The core totals succeed; the satellite's dimension query fails.
	fake := newFakeAnalytics()
	core := &failDimensionClient{inner: fake}

	job := NewDailyJob(core, st, NewRegistry(core, nil), cache.Noop{})
	job.now = fixedNow

	m, err := job.Run(ctx, "2025-01-05")
	require.NoError(t, err)
	require.NotNil(t, m)

	cov, err := st.TableCoverage(ctx, store.TableProductsPerformance)
	require.NoError(t, err)
	assert.Zero(t, cov.Count)
}

// failDimensionClient fails any report that asks for a dimension
// breakdown and delegates totals to the inner client.
type failDimensionClient struct {
	inner analytics.Client
}

func (c *failDimensionClient) RunReport(ctx context.Context, req analytics.ReportRequest) (*analytics.Report, error) {
	if req.Dimension != "" {
		return nil, assert.AnError
	}
	return c.inner.RunReport(ctx, req)
}

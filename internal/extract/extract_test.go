package extract

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/model"
)

// fakeAnalytics serves canned reports keyed by the full request.
// Requests without a canned report get an empty report, which mirrors
// a day with no activity.
type fakeAnalytics struct {
	mu       sync.Mutex
	calls    int
	reports  map[string]*analytics.Report
	failDate map[string]error
}

func newFakeAnalytics() *fakeAnalytics {
	return &fakeAnalytics{
		reports:  map[string]*analytics.Report{},
		failDate: map[string]error{},
	}
}

func reqKey(req analytics.ReportRequest) string {
	return fmt.Sprintf("%s|%s|%s|%s", req.Date, req.Metric, req.Dimension, req.Segment)
}

func (f *fakeAnalytics) set(date, metric, dimension, segment string, report *analytics.Report) {
	f.reports[reqKey(analytics.ReportRequest{Date: date, Metric: metric, Dimension: dimension, Segment: segment})] = report
}

func (f *fakeAnalytics) RunReport(ctx context.Context, req analytics.ReportRequest) (*analytics.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.failDate[req.Date]; ok {
		return nil, err
	}
	if r, ok := f.reports[reqKey(req)]; ok {
		return r, nil
	}
	return &analytics.Report{}, nil
}

func fixedNow() time.Time {
	return time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(newFakeAnalytics(), nil)

	assert.Equal(t, []string{"products", "commodity_conversions", "channels", "campaigns"}, reg.Names())

	ex, err := reg.Get("channels")
	require.NoError(t, err)
	assert.Equal(t, 2, ex.Descriptor().DelayDays)

	_, err = reg.Get("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: products")
}

func TestRegistry_DelayOverrides(t *testing.T) {
	reg := NewRegistry(newFakeAnalytics(), map[string]int{"channels": 5, "unknown": 9})

	ex, err := reg.Get("channels")
	require.NoError(t, err)
	assert.Equal(t, 5, ex.Descriptor().DelayDays)

	ex, err = reg.Get("campaigns")
	require.NoError(t, err)
	assert.Equal(t, 2, ex.Descriptor().DelayDays)
}

func TestBase_ValidateDate(t *testing.T) {
	b := Base{Desc: Descriptor{Name: "channels", DelayDays: 2}}
	now := fixedNow()

	require.NoError(t, b.ValidateDate("2025-01-08", now))
	require.NoError(t, b.ValidateDate("2025-01-01", now))

	err := b.ValidateDate("2025-01-09", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not yet final")

	require.Error(t, b.ValidateDate("09.01.2025", now))

	assert.Equal(t, "2025-01-08", b.LatestExtractable(now))

	zero := Base{Desc: Descriptor{Name: "products", DelayDays: 0}}
	require.NoError(t, zero.ValidateDate("2025-01-10", now))
	require.Error(t, zero.ValidateDate("2025-01-11", now))
}

func TestProducts_ExtractShares(t *testing.T) {
	fake := newFakeAnalytics()
	fake.set("2025-01-05", analytics.MetricConversions, analytics.DimensionProduct, analytics.SegmentAll,
		&analytics.Report{Rows: []analytics.Row{
			{Dimension: "tariff-basic", Value: 30},
			{Dimension: "tariff-plus", Value: 70},
		}})

	rows, err := NewProducts(fake).Extract(context.Background(), "2025-01-05")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Sorted by value descending, share of total in MetricB.
	assert.Equal(t, "tariff-plus", rows[0].Dimension)
	assert.Equal(t, 70.0, rows[0].MetricA)
	assert.Equal(t, 70.0, rows[0].MetricB)
	assert.Equal(t, 30.0, rows[1].MetricB)
}

func TestProducts_ZeroTotalHasZeroShares(t *testing.T) {
	fake := newFakeAnalytics()
	fake.set("2025-01-05", analytics.MetricConversions, analytics.DimensionProduct, analytics.SegmentAll,
		&analytics.Report{Rows: []analytics.Row{
			{Dimension: "tariff-basic", Value: 0},
			{Dimension: "tariff-plus", Value: 0},
		}})

	rows, err := NewProducts(fake).Extract(context.Background(), "2025-01-05")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Zero(t, rows[0].MetricB)
	assert.Zero(t, rows[1].MetricB)
}

func TestChannels_MergesSegments(t *testing.T) {
	fake := newFakeAnalytics()
	fake.set("2025-01-05", analytics.MetricSessions, analytics.DimensionChannel, analytics.SegmentCommodity,
		&analytics.Report{Rows: []analytics.Row{
			{Dimension: "organic", Value: 120},
			{Dimension: "paid", Value: 40},
		}})
	fake.set("2025-01-05", analytics.MetricSessions, analytics.DimensionChannel, analytics.SegmentEnergy,
		&analytics.Report{Rows: []analytics.Row{
			{Dimension: "organic", Value: 60},
			{Dimension: "direct", Value: 15},
		}})

	rows, err := NewChannels(fake).Extract(context.Background(), "2025-01-05")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, model.SatelliteRow{Dimension: "organic", MetricA: 120, MetricB: 60}, rows[0])
	assert.Equal(t, model.SatelliteRow{Dimension: "paid", MetricA: 40, MetricB: 0}, rows[1])
	// Energy-only dimension keeps MetricA 0 and sorts last.
	assert.Equal(t, model.SatelliteRow{Dimension: "direct", MetricA: 0, MetricB: 15}, rows[2])
}

func TestChannels_EmptyDayIsValid(t *testing.T) {
	rows, err := NewChannels(newFakeAnalytics()).Extract(context.Background(), "2025-01-05")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

func fillSatellite(t *testing.T, st store.Store, table string, dates ...string) {
	t.Helper()
	for _, d := range dates {
		require.NoError(t, st.ReplaceSatelliteRows(context.Background(), table, d,
			[]model.SatelliteRow{{Dimension: "x", MetricA: 1}}))
	}
}

func TestCheckAlignment(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, newFakeAnalytics())
	seedReference(t, st, days("2025-01-01", 10)...)

	// Zero-delay tables fully loaded; channels stops at Jan 5 and is
	// misaligned; campaigns is current up to its window and aligned.
	fillSatellite(t, st, store.TableProductsPerformance, days("2025-01-01", 10)...)
	fillSatellite(t, st, store.TableConversionsByCommodity, days("2025-01-01", 10)...)
	fillSatellite(t, st, store.TableSessionsByChannel, days("2025-01-01", 5)...)
	fillSatellite(t, st, store.TableSessionsByCampaign, days("2025-01-01", 8)...)

	report, err := e.CheckAlignment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", report.ReferenceMinDate)
	assert.Equal(t, "2025-01-10", report.ReferenceMaxDate)
	assert.Equal(t, 10, report.ReferenceCount)
	assert.False(t, report.Aligned)
	require.Len(t, report.Tables, 4)

	byName := map[string]TableAlignment{}
	for _, ta := range report.Tables {
		byName[ta.Extractor] = ta
	}

	products := byName["products"]
	assert.True(t, products.Aligned)
	assert.Equal(t, "2025-01-10", products.ExpectedDate)
	assert.Equal(t, 10, products.ExpectedCount)
	assert.Equal(t, 10, products.ActualCount)
	assert.Empty(t, products.MissingDates)

	channels := byName["channels"]
	assert.False(t, channels.Aligned)
	assert.Equal(t, "2025-01-08", channels.ExpectedDate)
	assert.Equal(t, "2025-01-05", channels.MaxDate)
	assert.Equal(t, 8, channels.ExpectedCount)
	assert.Equal(t, 5, channels.ActualCount)
	assert.Equal(t, []string{"2025-01-06", "2025-01-07", "2025-01-08"}, channels.MissingDates)

	// The completeness window excuses Jan 9 and 10 for campaigns.
	campaigns := byName["campaigns"]
	assert.True(t, campaigns.Aligned)
	assert.Equal(t, "2025-01-08", campaigns.ExpectedDate)
	assert.Equal(t, 8, campaigns.ExpectedCount)
	assert.Equal(t, 8, campaigns.ActualCount)
}

func TestCheckAlignment_EmptyReference(t *testing.T) {
	e, _ := newTestEngine(t, newFakeAnalytics())

	report, err := e.CheckAlignment(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Aligned)
	assert.Empty(t, report.Tables)
}

func TestSync_FillsMisalignedTables(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, newFakeAnalytics())
	seedReference(t, st, days("2025-01-01", 10)...)
	fillSatellite(t, st, store.TableProductsPerformance, days("2025-01-01", 10)...)
	fillSatellite(t, st, store.TableConversionsByCommodity, days("2025-01-01", 10)...)
	fillSatellite(t, st, store.TableSessionsByChannel, days("2025-01-01", 5)...)
	fillSatellite(t, st, store.TableSessionsByCampaign, days("2025-01-01", 8)...)

	res, err := e.Sync(ctx, false, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Backfills, 1)
	assert.Equal(t, 3, res.Backfills["channels"].Processed)

	report, err := e.CheckAlignment(ctx)
	require.NoError(t, err)
	assert.True(t, report.Aligned)
}

func TestSync_DryRun(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAnalytics()
	e, st := newTestEngine(t, fake)
	seedReference(t, st, days("2025-01-01", 10)...)
	fillSatellite(t, st, store.TableSessionsByChannel, days("2025-01-01", 5)...)

	res, err := e.Sync(ctx, true, []string{"channels"})
	require.NoError(t, err)
	require.Len(t, res.Backfills, 1)
	assert.Zero(t, res.Backfills["channels"].Processed)
	assert.Len(t, res.Backfills["channels"].Missing, 3)
	assert.Zero(t, fake.calls)
}

func TestSync_SelectsExtractors(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, newFakeAnalytics())
	seedReference(t, st, days("2025-01-01", 6)...)

	// Everything is misaligned; only products is selected.
	res, err := e.Sync(ctx, false, []string{"products"})
	require.NoError(t, err)
	require.Len(t, res.Backfills, 1)
	assert.Equal(t, 6, res.Backfills["products"].Processed)

	_, err = e.Sync(ctx, false, []string{"bogus"})
	require.Error(t, err)
}

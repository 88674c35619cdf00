package extract

import (
	"context"
	"sort"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// Channels extracts per-channel session counts, split between the
// commodity and energy funnels. Session attribution takes the upstream
// two days to settle, hence the delay.
type Channels struct {
	Base
	client analytics.Client
}

func NewChannels(client analytics.Client) *Channels {
	return &Channels{
		Base: Base{Desc: Descriptor{
			Name:        "channels",
			Table:       store.TableSessionsByChannel,
			DelayDays:   2,
			Description: "sessions per acquisition channel, commodity vs energy",
		}},
		client: client,
	}
}

func (c *Channels) setDelayDays(days int) { c.Desc.DelayDays = days }

func (c *Channels) Extract(ctx context.Context, date string) ([]model.SatelliteRow, error) {
	return extractSegmentPair(ctx, c.client, date, analytics.DimensionChannel)
}

// extractSegmentPair runs the sessions report once per funnel segment
// and merges the results by dimension value: commodity sessions land in
// MetricA, energy sessions in MetricB. A dimension present in only one
// segment keeps 0 for the other.
func extractSegmentPair(ctx context.Context, client analytics.Client, date, dimension string) ([]model.SatelliteRow, error) {
	merged := map[string]*model.SatelliteRow{}

	for _, seg := range []struct {
		segment string
		assign  func(r *model.SatelliteRow, v float64)
	}{
		{analytics.SegmentCommodity, func(r *model.SatelliteRow, v float64) { r.MetricA = v }},
		{analytics.SegmentEnergy, func(r *model.SatelliteRow, v float64) { r.MetricB = v }},
	} {
		report, err := client.RunReport(ctx, analytics.ReportRequest{
			Date:      date,
			Metric:    analytics.MetricSessions,
			Dimension: dimension,
			Segment:   seg.segment,
		})
		if err != nil {
			return nil, err
		}
		for _, row := range report.Rows {
			r, ok := merged[row.Dimension]
			if !ok {
				r = &model.SatelliteRow{Dimension: row.Dimension}
				merged[row.Dimension] = r
			}
			seg.assign(r, row.Value)
		}
	}

	out := make([]model.SatelliteRow, 0, len(merged))
	for _, r := range merged {
		out = append(out, *r)
	}
	sortRows(out)
	return out, nil
}

// sortRows orders rows by the primary metric descending, then by
// dimension value for a stable order among ties.
func sortRows(rows []model.SatelliteRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].MetricA != rows[j].MetricA {
			return rows[i].MetricA > rows[j].MetricA
		}
		return rows[i].Dimension < rows[j].Dimension
	})
}

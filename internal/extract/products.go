package extract

import (
	"context"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// Products extracts per-product conversion counts. Conversion data is
// final the same day, so there is no completeness delay.
type Products struct {
	Base
	client analytics.Client
}

func NewProducts(client analytics.Client) *Products {
	return &Products{
		Base: Base{Desc: Descriptor{
			Name:        "products",
			Table:       store.TableProductsPerformance,
			DelayDays:   0,
			Description: "conversions per product with share of total",
		}},
		client: client,
	}
}

func (p *Products) setDelayDays(days int) { p.Desc.DelayDays = days }

func (p *Products) Extract(ctx context.Context, date string) ([]model.SatelliteRow, error) {
	return extractWithShare(ctx, p.client, analytics.ReportRequest{
		Date:      date,
		Metric:    analytics.MetricConversions,
		Dimension: analytics.DimensionProduct,
	})
}

// extractWithShare runs a single-dimension report and derives each row's
// share of the total as the second metric. Shares are 0 when the total
// is 0.
func extractWithShare(ctx context.Context, client analytics.Client, req analytics.ReportRequest) ([]model.SatelliteRow, error) {
	report, err := client.RunReport(ctx, req)
	if err != nil {
		return nil, err
	}

	total := 0.0
	for _, row := range report.Rows {
		total += row.Value
	}

	out := make([]model.SatelliteRow, 0, len(report.Rows))
	for _, row := range report.Rows {
		share := 0.0
		if total > 0 {
			share = row.Value / total * 100
		}
		out = append(out, model.SatelliteRow{
			Dimension: row.Dimension,
			MetricA:   row.Value,
			MetricB:   share,
		})
	}
	sortRows(out)
	return out, nil
}

package extract

import (
	"context"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// CommodityConversions extracts conversion counts broken down by
// commodity type. No completeness delay.
type CommodityConversions struct {
	Base
	client analytics.Client
}

func NewCommodityConversions(client analytics.Client) *CommodityConversions {
	return &CommodityConversions{
		Base: Base{Desc: Descriptor{
			Name:        "commodity_conversions",
			Table:       store.TableConversionsByCommodity,
			DelayDays:   0,
			Description: "conversions per commodity type with share of total",
		}},
		client: client,
	}
}

func (c *CommodityConversions) setDelayDays(days int) { c.Desc.DelayDays = days }

func (c *CommodityConversions) Extract(ctx context.Context, date string) ([]model.SatelliteRow, error) {
	return extractWithShare(ctx, c.client, analytics.ReportRequest{
		Date:      date,
		Metric:    analytics.MetricConversions,
		Dimension: analytics.DimensionCommodityType,
	})
}

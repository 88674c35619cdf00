package extract

import (
	"context"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// Campaigns extracts per-campaign session counts, split between the
// commodity and energy funnels. Shares the channel extractor's
// attribution delay.
type Campaigns struct {
	Base
	client analytics.Client
}

func NewCampaigns(client analytics.Client) *Campaigns {
	return &Campaigns{
		Base: Base{Desc: Descriptor{
			Name:        "campaigns",
			Table:       store.TableSessionsByCampaign,
			DelayDays:   2,
			Description: "sessions per campaign, commodity vs energy",
		}},
		client: client,
	}
}

func (c *Campaigns) setDelayDays(days int) { c.Desc.DelayDays = days }

func (c *Campaigns) Extract(ctx context.Context, date string) ([]model.SatelliteRow, error) {
	return extractSegmentPair(ctx, c.client, date, analytics.DimensionCampaign)
}

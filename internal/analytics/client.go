// Package analytics defines the boundary to the upstream analytics
// reporting API. The engine depends only on the Client interface; the
// HTTP/authentication transport is supplied by the embedding application.
package analytics

import "context"

// Metric names understood by the upstream property.
const (
	MetricSessions     = "sessions"
	MetricConversions  = "conversions"
	MetricFunnelStarts = "funnelStarts"
)

// Dimension names used by the satellite breakdowns.
const (
	DimensionProduct       = "productName"
	DimensionCommodityType = "commodityType"
	DimensionChannel       = "sessionChannel"
	DimensionCampaign      = "sessionCampaign"
)

// Segments select the traffic slice a report is computed over.
const (
	SegmentAll       = ""
	SegmentCommodity = "commodity"
	SegmentEnergy    = "energy"
)

// ReportRequest asks for one metric for a single date, optionally broken
// down by a dimension and restricted to a segment.
type ReportRequest struct {
	Date      string `json:"date"`
	Metric    string `json:"metric"`
	Dimension string `json:"dimension,omitempty"`
	Segment   string `json:"segment,omitempty"`
}

// Row is one (dimension value, metric value) pair of a report.
type Row struct {
	Dimension string  `json:"dimension"`
	Value     float64 `json:"value"`
}

// Report is the result of a report request. An empty Rows slice is valid
// data, not an error: it means the upstream has nothing for that slice.
type Report struct {
	Rows  []Row   `json:"rows"`
	Total float64 `json:"total"`
}

// Client runs date-scoped report requests against the upstream API.
type Client interface {
	RunReport(ctx context.Context, req ReportRequest) (*Report, error)
}

// Package model defines the typed records persisted by the metrics store.
package model

import "time"

// DailyMetrics is one row of the daily_metrics reference table: the complete
// set of property-wide metrics extracted for a single calendar date.
type DailyMetrics struct {
	Date              string    `json:"date"`
	ExtractedAt       time.Time `json:"extracted_at"`
	CommoditySessions int       `json:"commodity_sessions"`
	EnergySessions    int       `json:"energy_sessions"`
	Conversions       int       `json:"conversions"`
	CRCommodity       float64   `json:"cr_commodity"`
	CREnergy          float64   `json:"cr_energy"`
	CRFunnel          float64   `json:"cr_funnel"`
	FunnelStarts      int       `json:"funnel_starts"`
}

// SatelliteRow is one dimensional breakdown row for a date. All satellite
// tables share the same shape: a dimension value plus two metrics whose
// meaning depends on the table (e.g. conversions/share for products,
// commodity/energy sessions for channels).
type SatelliteRow struct {
	Dimension string  `json:"dimension"`
	MetricA   float64 `json:"metric_a"`
	MetricB   float64 `json:"metric_b"`
}

// Statistics summarizes the reference table coverage.
type Statistics struct {
	MinDate              string  `json:"min_date"`
	MaxDate              string  `json:"max_date"`
	Count                int     `json:"count"`
	AvgCommoditySessions float64 `json:"avg_commodity_sessions"`
	AvgConversions       float64 `json:"avg_conversions"`
}

// MetricChanges holds percentage changes between two daily records.
// A change is 0 whenever the previous value is 0; never NaN or an error.
type MetricChanges struct {
	CommoditySessions float64 `json:"commodity_sessions_change"`
	EnergySessions    float64 `json:"energy_sessions_change"`
	Conversions       float64 `json:"conversions_change"`
	CRCommodity       float64 `json:"cr_commodity_change"`
	CREnergy          float64 `json:"cr_energy_change"`
}

// Comparison relates a date's metrics to those N days earlier.
// Previous and Changes are nil when no record exists for the earlier date.
type Comparison struct {
	CurrentDate  string         `json:"current_date"`
	PreviousDate string         `json:"previous_date"`
	DaysOffset   int            `json:"days_offset"`
	Current      *DailyMetrics  `json:"current"`
	Previous     *DailyMetrics  `json:"previous,omitempty"`
	Changes      *MetricChanges `json:"changes,omitempty"`
}

// PctChange returns the percentage change from previous to current,
// defined as 0 when previous is 0.
func PctChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// Compare builds the change set between two records. It returns nil
// when either side is absent.
func Compare(current, previous *DailyMetrics) *MetricChanges {
	if current == nil || previous == nil {
		return nil
	}
	return &MetricChanges{
		CommoditySessions: PctChange(float64(current.CommoditySessions), float64(previous.CommoditySessions)),
		EnergySessions:    PctChange(float64(current.EnergySessions), float64(previous.EnergySessions)),
		Conversions:       PctChange(float64(current.Conversions), float64(previous.Conversions)),
		CRCommodity:       PctChange(current.CRCommodity, previous.CRCommodity),
		CREnergy:          PctChange(current.CREnergy, previous.CREnergy),
	}
}

package model

import (
	"testing"
	"time"
)

func TestPctChange(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		previous float64
		want     float64
	}{
		{"increase", 150, 100, 50},
		{"decrease", 50, 100, -50},
		{"flat", 100, 100, 0},
		{"zero previous", 42, 0, 0},
		{"both zero", 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PctChange(tc.current, tc.previous); got != tc.want {
				t.Errorf("PctChange(%v, %v) = %v, want %v", tc.current, tc.previous, got, tc.want)
			}
		})
	}
}

func TestCompare_ZeroPrevious(t *testing.T) {
	cur := &DailyMetrics{Conversions: 10, CommoditySessions: 100, CRCommodity: 2.5}
	prev := &DailyMetrics{Conversions: 0, CommoditySessions: 50, CRCommodity: 0}

	ch := Compare(cur, prev)
	if ch.Conversions != 0 {
		t.Errorf("conversions change with zero previous = %v, want 0", ch.Conversions)
	}
	if ch.CRCommodity != 0 {
		t.Errorf("cr change with zero previous = %v, want 0", ch.CRCommodity)
	}
	if ch.CommoditySessions != 100 {
		t.Errorf("sessions change = %v, want 100", ch.CommoditySessions)
	}
}

func TestDayHelpers(t *testing.T) {
	d, err := ParseDay("2025-01-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FormatDay(d) != "2025-01-06" {
		t.Errorf("round trip = %s", FormatDay(d))
	}

	if _, err := ParseDay("06/01/2025"); err == nil {
		t.Error("expected error for non-canonical layout")
	}

	shifted, err := AddDays("2025-01-06", -7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shifted != "2024-12-30" {
		t.Errorf("AddDays = %s, want 2024-12-30", shifted)
	}

	now := time.Date(2025, 1, 10, 15, 30, 0, 0, time.UTC)
	if got := Yesterday(now); got != "2025-01-09" {
		t.Errorf("Yesterday = %s", got)
	}
}

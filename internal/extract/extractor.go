// Package extract pulls daily metrics from the analytics backend and
// keeps the local store aligned with it.
//
// Each dimensional breakdown (products, commodity conversions, channels,
// campaigns) is an Extractor that knows how to fetch one day of data and
// replace that day's rows in its satellite table. The backfill engine
// drives extractors over date ranges, and the alignment checker compares
// every satellite table against the daily_metrics reference.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// Descriptor identifies an extractor and its target table.
type Descriptor struct {
	// Name is the registry key, used in CLI flags and the run log.
	Name string

	// Table is the satellite table the extractor writes to.
	Table string

	// DelayDays is how many days the upstream needs before a date's
	// data is final. Dates newer than today minus DelayDays are
	// rejected by ValidateDate.
	DelayDays int

	Description string
}

// Extractor fetches and persists one dimensional breakdown.
type Extractor interface {
	Descriptor() Descriptor

	// Extract fetches one day of rows from the upstream. An empty
	// result is valid data, not an error.
	Extract(ctx context.Context, date string) ([]model.SatelliteRow, error)

	// Save replaces the date's rows in the satellite table.
	Save(ctx context.Context, st store.Store, date string, rows []model.SatelliteRow) error

	// MissingDates lists dates in [start, end] present in the
	// reference table but absent from the satellite table.
	MissingDates(ctx context.Context, st store.Store, start, end string) ([]string, error)

	// ValidateDate rejects malformed dates and dates the upstream has
	// not finalized yet.
	ValidateDate(date string, now time.Time) error
}

// Base carries the shared persistence and validation behavior.
// Concrete extractors embed it and implement Extract.
type Base struct {
	Desc Descriptor
}

func (b Base) Descriptor() Descriptor {
	return b.Desc
}

func (b Base) Save(ctx context.Context, st store.Store, date string, rows []model.SatelliteRow) error {
	return st.ReplaceSatelliteRows(ctx, b.Desc.Table, date, rows)
}

func (b Base) MissingDates(ctx context.Context, st store.Store, start, end string) ([]string, error) {
	return st.MissingDates(ctx, b.Desc.Table, start, end)
}

// ValidateDate checks the date format and the completeness window: the
// newest extractable date is today minus DelayDays.
func (b Base) ValidateDate(date string, now time.Time) error {
	d, err := model.ParseDay(date)
	if err != nil {
		return err
	}
	latest := model.Truncate(now).AddDate(0, 0, -b.Desc.DelayDays)
	if d.After(latest) {
		return eris.Errorf("%s: date %s not yet final (latest extractable is %s, delay %dd)",
			b.Desc.Name, date, model.FormatDay(latest), b.Desc.DelayDays)
	}
	return nil
}

// LatestExtractable returns the newest date the extractor may process.
func (b Base) LatestExtractable(now time.Time) string {
	return model.FormatDay(model.Truncate(now).AddDate(0, 0, -b.Desc.DelayDays))
}

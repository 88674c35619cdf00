package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// TableAlignment describes how one satellite table tracks the
// reference table.
type TableAlignment struct {
	Extractor string `json:"extractor"`
	Table     string `json:"table"`
	DelayDays int    `json:"delay_days"`

	// MaxDate is the satellite table's newest date, empty when the
	// table has no rows.
	MaxDate string `json:"max_date"`

	// ExpectedDate is the newest date the table should have: the
	// reference table's max capped by the completeness window.
	ExpectedDate string `json:"expected_date"`

	// ExpectedCount is how many reference dates fall on or before
	// ExpectedDate; ActualCount is how many distinct dates the table
	// actually holds.
	ExpectedCount int `json:"expected_count"`
	ActualCount   int `json:"actual_count"`

	// MissingDates are reference dates up to ExpectedDate the table
	// lacks.
	MissingDates []string `json:"missing_dates"`

	Aligned bool `json:"aligned"`
}

// AlignmentReport is the full alignment picture across all extractors.
type AlignmentReport struct {
	ReferenceMinDate string           `json:"reference_min_date"`
	ReferenceMaxDate string           `json:"reference_max_date"`
	ReferenceCount   int              `json:"reference_count"`
	Tables           []TableAlignment `json:"tables"`
	Aligned          bool             `json:"aligned"`
}

// CheckAlignment compares every satellite table against the reference
// table. A table is aligned when it has every reference date up to its
// expected date; dates still inside the completeness window are not
// held against it.
func (e *Engine) CheckAlignment(ctx context.Context) (*AlignmentReport, error) {
	stats, err := e.st.Statistics(ctx)
	if err != nil {
		return nil, err
	}

	report := &AlignmentReport{
		ReferenceMinDate: stats.MinDate,
		ReferenceMaxDate: stats.MaxDate,
		ReferenceCount:   stats.Count,
		Aligned:          true,
	}
	if stats.Count == 0 {
		// Nothing to align against.
		return report, nil
	}

	refDates, err := e.st.TableDates(ctx, store.TableDailyMetrics)
	if err != nil {
		return nil, err
	}

	for _, ex := range e.reg.All() {
		desc := ex.Descriptor()

		expected, err := model.AddDays(stats.MaxDate, -desc.DelayDays)
		if err != nil {
			return nil, err
		}
		ta := TableAlignment{
			Extractor:    desc.Name,
			Table:        desc.Table,
			DelayDays:    desc.DelayDays,
			ExpectedDate: expected,
		}

		cov, err := e.st.TableCoverage(ctx, desc.Table)
		if err != nil {
			return nil, err
		}
		ta.MaxDate = cov.MaxDate
		ta.ActualCount = cov.Count
		for _, d := range refDates {
			if d <= expected {
				ta.ExpectedCount++
			}
		}

		if expected >= stats.MinDate {
			missing, err := ex.MissingDates(ctx, e.st, stats.MinDate, expected)
			if err != nil {
				return nil, err
			}
			ta.MissingDates = missing
		}
		ta.Aligned = len(ta.MissingDates) == 0
		if !ta.Aligned {
			report.Aligned = false
		}
		report.Tables = append(report.Tables, ta)
	}
	return report, nil
}

// SyncResult is the outcome of bringing misaligned tables up to date.
type SyncResult struct {
	Report    *AlignmentReport           `json:"report"`
	Backfills map[string]*BackfillResult `json:"backfills,omitempty"`
	Success   bool                       `json:"success"`
}

// Sync checks alignment and backfills every misaligned table. With
// tables non-empty only the named extractors are considered. Dry runs
// report the plan without extracting.
func (e *Engine) Sync(ctx context.Context, dryRun bool, extractors []string) (*SyncResult, error) {
	selected := map[string]bool{}
	for _, name := range extractors {
		if _, err := e.reg.Get(name); err != nil {
			return nil, err
		}
		selected[name] = true
	}

	report, err := e.CheckAlignment(ctx)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Report: report, Success: true}
	for _, ta := range report.Tables {
		if ta.Aligned {
			continue
		}
		if len(selected) > 0 && !selected[ta.Extractor] {
			continue
		}

		e.log.Info("syncing misaligned table",
			zap.String("extractor", ta.Extractor),
			zap.Int("missing", len(ta.MissingDates)),
			zap.Bool("dry_run", dryRun))

		bf, err := e.Incremental(ctx, ta.Extractor, BackfillOptions{
			Start:  report.ReferenceMinDate,
			End:    ta.ExpectedDate,
			DryRun: dryRun,
		})
		if err != nil {
			return nil, err
		}
		if res.Backfills == nil {
			res.Backfills = make(map[string]*BackfillResult)
		}
		res.Backfills[ta.Extractor] = bf
		if !bf.Success {
			res.Success = false
		}
	}
	return res, nil
}

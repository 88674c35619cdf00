// Package store persists daily metrics and their dimensional breakdowns.
//
// Two engines implement the same Store interface: SQLite via
// modernc.org/sqlite for local and development use, and Postgres via
// pgxpool for shared deployments. Open picks the engine from the
// connection string.
package store

import (
	"context"
	"embed"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/voltadata/metricsync/internal/migrate"
	"github.com/voltadata/metricsync/internal/model"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// TableDailyMetrics is the reference table every satellite table is
// measured against for gap detection.
const TableDailyMetrics = "daily_metrics"

// Satellite table names. All satellite tables share the same shape:
// (id, date, dimension_value, metric_a, metric_b) with a unique
// (date, dimension_value) pair.
const (
	TableProductsPerformance    = "products_performance"
	TableConversionsByCommodity = "conversions_by_commodity"
	TableSessionsByChannel      = "sessions_by_channel"
	TableSessionsByCampaign     = "sessions_by_campaign"
)

// satelliteTables is the allowlist for table-name parameters. Table
// names are interpolated into SQL, so anything outside this set is
// rejected before a query is built.
var satelliteTables = map[string]bool{
	TableProductsPerformance:    true,
	TableConversionsByCommodity: true,
	TableSessionsByChannel:      true,
	TableSessionsByCampaign:     true,
}

// SatelliteTables returns the allowlisted satellite table names, sorted.
func SatelliteTables() []string {
	out := make([]string, 0, len(satelliteTables))
	for name := range satelliteTables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func validSatellite(table string) error {
	if !satelliteTables[table] {
		return eris.Errorf("store: unknown satellite table %q (known: %s)",
			table, strings.Join(SatelliteTables(), ", "))
	}
	return nil
}

// validTable accepts satellite tables plus the reference table, for
// operations like date coverage that apply to both.
func validTable(table string) error {
	if table == TableDailyMetrics {
		return nil
	}
	return validSatellite(table)
}

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one row of the extraction run log.
type RunRecord struct {
	ID             string     `json:"id"`
	Extractor      string     `json:"extractor"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         RunStatus  `json:"status"`
	DatesProcessed int        `json:"dates_processed"`
	DatesFailed    int        `json:"dates_failed"`
	Detail         string     `json:"detail,omitempty"`
}

// TableCoverage summarizes the date span a table has data for.
type TableCoverage struct {
	Table   string `json:"table"`
	MinDate string `json:"min_date"`
	MaxDate string `json:"max_date"`
	Count   int    `json:"count"`
}

// Store defines the persistence interface for the metrics pipeline.
// Lookups for a single date return (nil, nil) when the date is absent.
type Store interface {
	// Daily metrics
	UpsertDailyMetrics(ctx context.Context, m *model.DailyMetrics) error
	GetDailyMetrics(ctx context.Context, date string) (*model.DailyMetrics, error)
	GetRange(ctx context.Context, start, end string) ([]model.DailyMetrics, error)
	GetLatest(ctx context.Context) (*model.DailyMetrics, error)
	Statistics(ctx context.Context) (*model.Statistics, error)

	// Satellite tables
	ReplaceSatelliteRows(ctx context.Context, table, date string, rows []model.SatelliteRow) error
	SatelliteRows(ctx context.Context, table, date string) ([]model.SatelliteRow, error)

	// Date coverage
	TableDates(ctx context.Context, table string) ([]string, error)
	TableCoverage(ctx context.Context, table string) (*TableCoverage, error)
	MissingDates(ctx context.Context, table, start, end string) ([]string, error)

	// Run log
	StartRun(ctx context.Context, extractor string) (*RunRecord, error)
	CompleteRun(ctx context.Context, runID string, processed, failed int, detail string) error
	FailRun(ctx context.Context, runID string, processed, failed int, detail string) error
	ListRuns(ctx context.Context, extractor string, limit int) ([]RunRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	MigrationStatus(ctx context.Context) (*migrate.Status, error)
	Ping(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the Postgres engine uses. pgxmock
// satisfies it, which keeps the Postgres store testable without a server.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Open selects a storage engine from the connection string: postgres://
// or postgresql:// URLs get the Postgres engine, anything else is
// treated as a SQLite file path.
func Open(ctx context.Context, databaseURL string, poolCfg *PoolConfig) (Store, error) {
	if databaseURL == "" {
		return nil, eris.New("store: empty database url")
	}
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgres(ctx, databaseURL, poolCfg)
	}
	return NewSQLite(databaseURL)
}

// ComputeComparisons builds period-over-period comparisons for the given
// date. Each offset looks back that many days; an absent previous row
// yields a Comparison with Previous nil and zero changes.
func ComputeComparisons(ctx context.Context, s Store, date string, offsets []int) ([]model.Comparison, error) {
	current, err := s.GetDailyMetrics(ctx, date)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, eris.Errorf("store: no metrics for %s", date)
	}

	out := make([]model.Comparison, 0, len(offsets))
	for _, offset := range offsets {
		prevDate, err := model.AddDays(date, -offset)
		if err != nil {
			return nil, err
		}
		previous, err := s.GetDailyMetrics(ctx, prevDate)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Comparison{
			CurrentDate:  date,
			PreviousDate: prevDate,
			DaysOffset:   offset,
			Current:      current,
			Previous:     previous,
			Changes:      model.Compare(current, previous),
		})
	}
	return out, nil
}

// missingCalendarDays returns the days of [start, end] absent from the
// present set. Used for gap detection on the reference table itself,
// where there is no other table to anti-join against.
func missingCalendarDays(start, end string, present map[string]bool) ([]string, error) {
	startT, err := model.ParseDay(start)
	if err != nil {
		return nil, err
	}
	endT, err := model.ParseDay(end)
	if err != nil {
		return nil, err
	}

	var missing []string
	for d := startT; !d.After(endT); d = d.AddDate(0, 0, 1) {
		day := model.FormatDay(d)
		if !present[day] {
			missing = append(missing, day)
		}
	}
	return missing, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/voltadata/metricsync/internal/migrate"
	"github.com/voltadata/metricsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteMigrateTarget adapts *sql.DB to the migration runner.
type sqliteMigrateTarget struct {
	db *sql.DB
}

func (t *sqliteMigrateTarget) EnsureTable(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL,
		checksum TEXT NOT NULL
	)`)
	return eris.Wrap(err, "sqlite: create _migrations")
}

func (t *sqliteMigrateTarget) Applied(ctx context.Context) (map[string]string, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT version, checksum FROM _migrations`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query _migrations")
	}
	defer rows.Close()

	applied := map[string]string{}
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan _migrations")
		}
		applied[version] = checksum
	}
	return applied, eris.Wrap(rows.Err(), "sqlite: iterate _migrations")
}

func (t *sqliteMigrateTarget) Apply(ctx context.Context, version, checksum, sqlText string) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		return eris.Wrapf(err, "sqlite: exec migration %s", version)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _migrations (version, applied_at, checksum) VALUES (?, ?, ?)`,
		version, time.Now().UTC().Format(time.RFC3339), checksum,
	); err != nil {
		return eris.Wrapf(err, "sqlite: record migration %s", version)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit migration")
}

func (s *SQLiteStore) runner(ctx context.Context) (*migrate.Runner, error) {
	return migrate.NewRunner(ctx, migrationFS, "migrations/sqlite", &sqliteMigrateTarget{db: s.db})
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	r, err := s.runner(ctx)
	if err != nil {
		return err
	}
	_, err = r.RunAllPending(ctx)
	return err
}

func (s *SQLiteStore) MigrationStatus(ctx context.Context) (*migrate.Status, error) {
	r, err := s.runner(ctx)
	if err != nil {
		return nil, err
	}
	return r.Status(ctx)
}

func (s *SQLiteStore) UpsertDailyMetrics(ctx context.Context, m *model.DailyMetrics) error {
	if _, err := model.ParseDay(m.Date); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (
			date, extracted_at, commodity_sessions, energy_sessions, conversions,
			cr_commodity, cr_energy, cr_funnel, funnel_starts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE SET
			extracted_at = excluded.extracted_at,
			commodity_sessions = excluded.commodity_sessions,
			energy_sessions = excluded.energy_sessions,
			conversions = excluded.conversions,
			cr_commodity = excluded.cr_commodity,
			cr_energy = excluded.cr_energy,
			cr_funnel = excluded.cr_funnel,
			funnel_starts = excluded.funnel_starts`,
		m.Date, m.ExtractedAt.UTC().Format(time.RFC3339),
		m.CommoditySessions, m.EnergySessions, m.Conversions,
		m.CRCommodity, m.CREnergy, m.CRFunnel, m.FunnelStarts,
	)
	return eris.Wrapf(err, "sqlite: upsert daily metrics %s", m.Date)
}

const sqliteDailyColumns = `date, extracted_at, commodity_sessions, energy_sessions,
	conversions, cr_commodity, cr_energy, cr_funnel, funnel_starts`

func scanSQLiteDaily(scan func(dest ...any) error) (*model.DailyMetrics, error) {
	var m model.DailyMetrics
	var extractedAt string
	err := scan(&m.Date, &extractedAt, &m.CommoditySessions, &m.EnergySessions,
		&m.Conversions, &m.CRCommodity, &m.CREnergy, &m.CRFunnel, &m.FunnelStarts)
	if err != nil {
		return nil, err
	}
	m.ExtractedAt, err = time.Parse(time.RFC3339, extractedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse extracted_at %q", extractedAt)
	}
	return &m, nil
}

func (s *SQLiteStore) GetDailyMetrics(ctx context.Context, date string) (*model.DailyMetrics, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDailyColumns+` FROM daily_metrics WHERE date = ?`, date)
	m, err := scanSQLiteDaily(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get daily metrics %s", date)
	}
	return m, nil
}

func (s *SQLiteStore) GetRange(ctx context.Context, start, end string) ([]model.DailyMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteDailyColumns+` FROM daily_metrics WHERE date >= ? AND date <= ? ORDER BY date`,
		start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: range %s..%s", start, end)
	}
	defer rows.Close()

	var out []model.DailyMetrics
	for rows.Next() {
		m, err := scanSQLiteDaily(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily metrics")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate daily metrics")
}

func (s *SQLiteStore) GetLatest(ctx context.Context) (*model.DailyMetrics, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDailyColumns+` FROM daily_metrics ORDER BY date DESC LIMIT 1`)
	m, err := scanSQLiteDaily(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest")
	}
	return m, nil
}

func (s *SQLiteStore) Statistics(ctx context.Context) (*model.Statistics, error) {
	var st model.Statistics
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(date), ''), COALESCE(MAX(date), ''), COUNT(*),
			COALESCE(AVG(commodity_sessions), 0), COALESCE(AVG(conversions), 0)
		FROM daily_metrics`,
	).Scan(&st.MinDate, &st.MaxDate, &st.Count, &st.AvgCommoditySessions, &st.AvgConversions)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: statistics")
	}
	return &st, nil
}

// ReplaceSatelliteRows atomically swaps a date's rows in a satellite
// table: delete then insert inside one transaction, so readers never see
// a partially loaded date.
func (s *SQLiteStore) ReplaceSatelliteRows(ctx context.Context, table, date string, rows []model.SatelliteRow) error {
	if err := validSatellite(table); err != nil {
		return err
	}
	if _, err := model.ParseDay(date); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE date = ?`, table), date,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s for %s", table, date)
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (date, dimension_value, metric_a, metric_b) VALUES (?, ?, ?, ?)`, table)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insert, date, r.Dimension, r.MetricA, r.MetricB); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row %q", table, r.Dimension)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit replace %s", table)
}

func (s *SQLiteStore) SatelliteRows(ctx context.Context, table, date string) ([]model.SatelliteRow, error) {
	if err := validSatellite(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT dimension_value, metric_a, metric_b FROM %s WHERE date = ? ORDER BY metric_a DESC, dimension_value`,
		table), date)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: rows of %s for %s", table, date)
	}
	defer rows.Close()

	var out []model.SatelliteRow
	for rows.Next() {
		var r model.SatelliteRow
		if err := rows.Scan(&r.Dimension, &r.MetricA, &r.MetricB); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s row", table)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}

func (s *SQLiteStore) TableDates(ctx context.Context, table string) ([]string, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT date FROM %s ORDER BY date`, table))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: dates of %s", table)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan date of %s", table)
		}
		out = append(out, d)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate dates of %s", table)
}

func (s *SQLiteStore) TableCoverage(ctx context.Context, table string) (*TableCoverage, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	cov := TableCoverage{Table: table}
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(MIN(date), ''), COALESCE(MAX(date), ''), COUNT(DISTINCT date) FROM %s`, table),
	).Scan(&cov.MinDate, &cov.MaxDate, &cov.Count)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: coverage of %s", table)
	}
	return &cov, nil
}

// MissingDates finds dates in [start, end] that the given table lacks.
// Satellite tables are anti-joined against daily_metrics: a date counts
// as missing only when the reference table has it and the satellite does
// not. For daily_metrics itself the calendar is the reference.
func (s *SQLiteStore) MissingDates(ctx context.Context, table, start, end string) ([]string, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	if table == TableDailyMetrics {
		present := map[string]bool{}
		dates, err := s.TableDates(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			present[d] = true
		}
		return missingCalendarDays(start, end, present)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT d.date FROM daily_metrics d
		LEFT JOIN %s t ON d.date = t.date
		WHERE d.date >= ? AND d.date <= ?
		GROUP BY d.date
		HAVING COUNT(t.id) = 0
		ORDER BY d.date`, table),
		start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: missing dates of %s", table)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan missing date of %s", table)
		}
		missing = append(missing, d)
	}
	return missing, eris.Wrapf(rows.Err(), "sqlite: iterate missing dates of %s", table)
}

func (s *SQLiteStore) StartRun(ctx context.Context, extractor string) (*RunRecord, error) {
	rec := &RunRecord{
		ID:        uuid.New().String(),
		Extractor: extractor,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_runs (id, extractor, started_at, status) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Extractor, rec.StartedAt.Format(time.RFC3339), string(rec.Status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: start run for %s", extractor)
	}
	return rec, nil
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status RunStatus, processed, failed int, detail string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE extraction_runs
		SET finished_at = ?, status = ?, dates_processed = ?, dates_failed = ?, detail = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), string(status), processed, failed, detail, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	if n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, processed, failed int, detail string) error {
	return s.finishRun(ctx, runID, RunCompleted, processed, failed, detail)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, processed, failed int, detail string) error {
	return s.finishRun(ctx, runID, RunFailed, processed, failed, detail)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, extractor string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, extractor, started_at, finished_at, status, dates_processed, dates_failed, COALESCE(detail, '')
		FROM extraction_runs`
	args := []any{}
	if extractor != "" {
		query += ` WHERE extractor = ?`
		args = append(args, extractor)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Extractor, &startedAt, &finishedAt,
			&rec.Status, &rec.DatesProcessed, &rec.DatesFailed, &rec.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		rec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse started_at %q", startedAt)
		}
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339, finishedAt.String)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: parse finished_at %q", finishedAt.String)
			}
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

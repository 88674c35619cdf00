package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/voltadata/metricsync/internal/migrate"
	"github.com/voltadata/metricsync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_daily":    `SELECT ` + pgDailyColumns + ` FROM daily_metrics WHERE date = $1::date`,
	"upsert_daily": pgUpsertDaily,
}

const pgDailyColumns = `date::text, extracted_at, commodity_sessions, energy_sessions,
	conversions, cr_commodity, cr_energy, cr_funnel, funnel_starts`

const pgUpsertDaily = `
	INSERT INTO daily_metrics (
		date, extracted_at, commodity_sessions, energy_sessions, conversions,
		cr_commodity, cr_energy, cr_funnel, funnel_starts
	) VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (date) DO UPDATE SET
		extracted_at = excluded.extracted_at,
		commodity_sessions = excluded.commodity_sessions,
		energy_sessions = excluded.energy_sessions,
		conversions = excluded.conversions,
		cr_commodity = excluded.cr_commodity,
		cr_energy = excluded.cr_energy,
		cr_funnel = excluded.cr_funnel,
		funnel_starts = excluded.funnel_starts`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// pgMigrateTarget adapts the pool to the migration runner. Migration
// files may contain multiple statements; with no bind parameters pgx
// falls back to the simple protocol, which accepts them.
type pgMigrateTarget struct {
	pool Pool
}

func (t *pgMigrateTarget) EnsureTable(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL,
		checksum TEXT NOT NULL
	)`)
	return eris.Wrap(err, "postgres: create _migrations")
}

func (t *pgMigrateTarget) Applied(ctx context.Context) (map[string]string, error) {
	rows, err := t.pool.Query(ctx, `SELECT version, checksum FROM _migrations`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query _migrations")
	}
	defer rows.Close()

	applied := map[string]string{}
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, eris.Wrap(err, "postgres: scan _migrations")
		}
		applied[version] = checksum
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate _migrations")
}

func (t *pgMigrateTarget) Apply(ctx context.Context, version, checksum, sqlText string) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sqlText); err != nil {
		return eris.Wrapf(err, "postgres: exec migration %s", version)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO _migrations (version, applied_at, checksum) VALUES ($1, $2, $3)`,
		version, time.Now().UTC(), checksum,
	); err != nil {
		return eris.Wrapf(err, "postgres: record migration %s", version)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit migration")
}

func (s *PostgresStore) runner(ctx context.Context) (*migrate.Runner, error) {
	return migrate.NewRunner(ctx, migrationFS, "migrations/postgres", &pgMigrateTarget{pool: s.pool})
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	r, err := s.runner(ctx)
	if err != nil {
		return err
	}
	_, err = r.RunAllPending(ctx)
	return err
}

func (s *PostgresStore) MigrationStatus(ctx context.Context) (*migrate.Status, error) {
	r, err := s.runner(ctx)
	if err != nil {
		return nil, err
	}
	return r.Status(ctx)
}

func (s *PostgresStore) UpsertDailyMetrics(ctx context.Context, m *model.DailyMetrics) error {
	if _, err := model.ParseDay(m.Date); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, pgUpsertDaily,
		m.Date, m.ExtractedAt.UTC(),
		m.CommoditySessions, m.EnergySessions, m.Conversions,
		m.CRCommodity, m.CREnergy, m.CRFunnel, m.FunnelStarts,
	)
	return eris.Wrapf(err, "postgres: upsert daily metrics %s", m.Date)
}

func scanPgDaily(row pgx.Row) (*model.DailyMetrics, error) {
	var m model.DailyMetrics
	err := row.Scan(&m.Date, &m.ExtractedAt, &m.CommoditySessions, &m.EnergySessions,
		&m.Conversions, &m.CRCommodity, &m.CREnergy, &m.CRFunnel, &m.FunnelStarts)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetDailyMetrics(ctx context.Context, date string) (*model.DailyMetrics, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgDailyColumns+` FROM daily_metrics WHERE date = $1::date`, date)
	m, err := scanPgDaily(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get daily metrics %s", date)
	}
	return m, nil
}

func (s *PostgresStore) GetRange(ctx context.Context, start, end string) ([]model.DailyMetrics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDailyColumns+` FROM daily_metrics WHERE date >= $1::date AND date <= $2::date ORDER BY date`,
		start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: range %s..%s", start, end)
	}
	defer rows.Close()

	var out []model.DailyMetrics
	for rows.Next() {
		m, err := scanPgDaily(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily metrics")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate daily metrics")
}

func (s *PostgresStore) GetLatest(ctx context.Context) (*model.DailyMetrics, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgDailyColumns+` FROM daily_metrics ORDER BY date DESC LIMIT 1`)
	m, err := scanPgDaily(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get latest")
	}
	return m, nil
}

func (s *PostgresStore) Statistics(ctx context.Context) (*model.Statistics, error) {
	var st model.Statistics
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MIN(date)::text, ''), COALESCE(MAX(date)::text, ''), COUNT(*),
			COALESCE(AVG(commodity_sessions), 0), COALESCE(AVG(conversions), 0)
		FROM daily_metrics`,
	).Scan(&st.MinDate, &st.MaxDate, &st.Count, &st.AvgCommoditySessions, &st.AvgConversions)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: statistics")
	}
	return &st, nil
}

// ReplaceSatelliteRows atomically swaps a date's rows in a satellite
// table inside one transaction.
func (s *PostgresStore) ReplaceSatelliteRows(ctx context.Context, table, date string, rows []model.SatelliteRow) error {
	if err := validSatellite(table); err != nil {
		return err
	}
	if _, err := model.ParseDay(date); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE date = $1::date`, table), date,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear %s for %s", table, date)
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (date, dimension_value, metric_a, metric_b) VALUES ($1::date, $2, $3, $4)`, table)
	for _, r := range rows {
		if _, err := tx.Exec(ctx, insert, date, r.Dimension, r.MetricA, r.MetricB); err != nil {
			return eris.Wrapf(err, "postgres: insert %s row %q", table, r.Dimension)
		}
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit replace %s", table)
}

func (s *PostgresStore) SatelliteRows(ctx context.Context, table, date string) ([]model.SatelliteRow, error) {
	if err := validSatellite(table); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT dimension_value, metric_a, metric_b FROM %s WHERE date = $1::date ORDER BY metric_a DESC, dimension_value`,
		table), date)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: rows of %s for %s", table, date)
	}
	defer rows.Close()

	var out []model.SatelliteRow
	for rows.Next() {
		var r model.SatelliteRow
		if err := rows.Scan(&r.Dimension, &r.MetricA, &r.MetricB); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s row", table)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", table)
}

func (s *PostgresStore) TableDates(ctx context.Context, table string) ([]string, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT date::text FROM %s ORDER BY date::text`, table))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: dates of %s", table)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan date of %s", table)
		}
		out = append(out, d)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate dates of %s", table)
}

func (s *PostgresStore) TableCoverage(ctx context.Context, table string) (*TableCoverage, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	cov := TableCoverage{Table: table}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(MIN(date)::text, ''), COALESCE(MAX(date)::text, ''), COUNT(DISTINCT date) FROM %s`, table),
	).Scan(&cov.MinDate, &cov.MaxDate, &cov.Count)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: coverage of %s", table)
	}
	return &cov, nil
}

// MissingDates mirrors the SQLite engine: anti-join satellites against
// daily_metrics, calendar scan for the reference table itself.
func (s *PostgresStore) MissingDates(ctx context.Context, table, start, end string) ([]string, error) {
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

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT d.date::text FROM daily_metrics d
		LEFT JOIN %s t ON d.date = t.date
		WHERE d.date >= $1::date AND d.date <= $2::date
		GROUP BY d.date
		HAVING COUNT(t.id) = 0
		ORDER BY d.date`, table),
		start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: missing dates of %s", table)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan missing date of %s", table)
		}
		missing = append(missing, d)
	}
	return missing, eris.Wrapf(rows.Err(), "postgres: iterate missing dates of %s", table)
}

func (s *PostgresStore) StartRun(ctx context.Context, extractor string) (*RunRecord, error) {
	rec := &RunRecord{
		ID:        uuid.New().String(),
		Extractor: extractor,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_runs (id, extractor, started_at, status) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.Extractor, rec.StartedAt, string(rec.Status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: start run for %s", extractor)
	}
	return rec, nil
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status RunStatus, processed, failed int, detail string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE extraction_runs
		SET finished_at = $1, status = $2, dates_processed = $3, dates_failed = $4, detail = $5
		WHERE id = $6`,
		time.Now().UTC(), string(status), processed, failed, detail, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, processed, failed int, detail string) error {
	return s.finishRun(ctx, runID, RunCompleted, processed, failed, detail)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, processed, failed int, detail string) error {
	return s.finishRun(ctx, runID, RunFailed, processed, failed, detail)
}

func (s *PostgresStore) ListRuns(ctx context.Context, extractor string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, extractor, started_at, finished_at, status, dates_processed, dates_failed, COALESCE(detail, '')
		FROM extraction_runs`
	args := []any{}
	argIdx := 1
	if extractor != "" {
		query += fmt.Sprintf(` WHERE extractor = $%d`, argIdx)
		args = append(args, extractor)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var finishedAt *time.Time
		if err := rows.Scan(&rec.ID, &rec.Extractor, &rec.StartedAt, &finishedAt,
			&rec.Status, &rec.DatesProcessed, &rec.DatesFailed, &rec.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		rec.FinishedAt = finishedAt
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

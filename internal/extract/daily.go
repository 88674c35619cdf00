package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/cache"
	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// DailyJob extracts the core daily metrics row and, on success, runs
// every zero-delay satellite extractor for the same date.
type DailyJob struct {
	client analytics.Client
	st     store.Store
	reg    *Registry
	cache  cache.Cache
	now    func() time.Time
	log    *zap.Logger
}

// NewDailyJob wires the daily extraction. cache may be a no-op.
func NewDailyJob(client analytics.Client, st store.Store, reg *Registry, c cache.Cache) *DailyJob {
	return &DailyJob{
		client: client,
		st:     st,
		reg:    reg,
		cache:  c,
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "extract.daily")),
	}
}

// Run extracts metrics for the given date, defaulting to yesterday when
// date is empty, and upserts the daily_metrics row. Satellite failures
// after the core row is written are logged but do not fail the run.
func (j *DailyJob) Run(ctx context.Context, date string) (*model.DailyMetrics, error) {
	if date == "" {
		date = model.Yesterday(j.now())
	}
	if _, err := model.ParseDay(date); err != nil {
		return nil, err
	}
	log := j.log.With(zap.String("date", date))

	m, err := j.extract(ctx, date)
	if err != nil {
		return nil, eris.Wrapf(err, "daily extraction for %s", date)
	}
	if err := j.st.UpsertDailyMetrics(ctx, m); err != nil {
		return nil, err
	}
	log.Info("daily metrics stored",
		zap.Int("commodity_sessions", m.CommoditySessions),
		zap.Int("energy_sessions", m.EnergySessions),
		zap.Int("conversions", m.Conversions))

	j.runZeroDelaySatellites(ctx, date, log)

	if err := j.cache.Set(ctx, date, m); err != nil {
		log.Warn("cache update failed", zap.Error(err))
	}
	return m, nil
}

// extract builds the daily row from four totals: sessions per funnel
// segment, conversions, and funnel starts.
func (j *DailyJob) extract(ctx context.Context, date string) (*model.DailyMetrics, error) {
	commoditySessions, err := j.total(ctx, date, analytics.MetricSessions, analytics.SegmentCommodity)
	if err != nil {
		return nil, err
	}
	energySessions, err := j.total(ctx, date, analytics.MetricSessions, analytics.SegmentEnergy)
	if err != nil {
		return nil, err
	}
	conversions, err := j.total(ctx, date, analytics.MetricConversions, analytics.SegmentAll)
	if err != nil {
		return nil, err
	}
	funnelStarts, err := j.total(ctx, date, analytics.MetricFunnelStarts, analytics.SegmentAll)
	if err != nil {
		return nil, err
	}

	return &model.DailyMetrics{
		Date:              date,
		ExtractedAt:       j.now().UTC(),
		CommoditySessions: int(commoditySessions),
		EnergySessions:    int(energySessions),
		Conversions:       int(conversions),
		CRCommodity:       rate(conversions, commoditySessions),
		CREnergy:          rate(conversions, energySessions),
		CRFunnel:          rate(conversions, funnelStarts),
		FunnelStarts:      int(funnelStarts),
	}, nil
}

func (j *DailyJob) total(ctx context.Context, date, metric, segment string) (float64, error) {
	report, err := j.client.RunReport(ctx, analytics.ReportRequest{
		Date:    date,
		Metric:  metric,
		Segment: segment,
	})
	if err != nil {
		return 0, err
	}
	return report.Total, nil
}

// rate is a conversion rate in percent, 0 when the base is 0.
func rate(conversions, base float64) float64 {
	if base == 0 {
		return 0
	}
	return conversions / base * 100
}

// runZeroDelaySatellites refreshes every extractor whose data is final
// the same day. Delayed extractors are left to the backfill engine,
// which picks the dates up once the completeness window passes.
func (j *DailyJob) runZeroDelaySatellites(ctx context.Context, date string, log *zap.Logger) {
	if j.reg == nil {
		return
	}
	for _, e := range j.reg.All() {
		desc := e.Descriptor()
		if desc.DelayDays != 0 {
			continue
		}
		rows, err := e.Extract(ctx, date)
		if err != nil {
			log.Warn("satellite extraction failed",
				zap.String("extractor", desc.Name), zap.Error(err))
			continue
		}
		if err := e.Save(ctx, j.st, date, rows); err != nil {
			log.Warn("satellite save failed",
				zap.String("extractor", desc.Name), zap.Error(err))
			continue
		}
		log.Debug("satellite refreshed",
			zap.String("extractor", desc.Name), zap.Int("rows", len(rows)))
	}
}

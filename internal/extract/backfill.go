package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// BackfillOptions narrows what Incremental processes.
type BackfillOptions struct {
	// Start and End bound the date range. Empty values fall back to
	// the automatic horizon derived from the reference table.
	Start string
	End   string

	// DryRun reports what would be processed without extracting.
	DryRun bool

	// SkipValidation processes dates inside the completeness window
	// anyway. Useful for re-pulling a date the upstream has restated.
	SkipValidation bool
}

// DateStatus is the outcome of one date within a backfill.
type DateStatus string

const (
	DateProcessed DateStatus = "processed"
	DateSkipped   DateStatus = "skipped"
	DateFailed    DateStatus = "failed"
)

// DateResult records what happened to a single date.
type DateResult struct {
	Date    string     `json:"date"`
	Status  DateStatus `json:"status"`
	Records int        `json:"records,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// BackfillResult summarizes one extractor's backfill.
type BackfillResult struct {
	Extractor string       `json:"extractor"`
	RunID     string       `json:"run_id,omitempty"`
	Start     string       `json:"start"`
	End       string       `json:"end"`
	Missing   []string     `json:"missing"`
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Details   []DateResult `json:"details"`
	DryRun    bool         `json:"dry_run,omitempty"`

	// Success means no date failed. Skipped dates do not count
	// against it.
	Success bool `json:"success"`
}

// Engine fills gaps in satellite tables by driving extractors over the
// dates they are missing.
type Engine struct {
	st  store.Store
	reg *Registry
	now func() time.Time
	log *zap.Logger
}

// NewEngine creates a backfill engine.
func NewEngine(st store.Store, reg *Registry) *Engine {
	return &Engine{
		st:  st,
		reg: reg,
		now: time.Now,
		log: zap.L().With(zap.String("component", "extract.backfill")),
	}
}

// Incremental backfills one extractor. With no explicit range the
// horizon is derived from the reference table: start at its earliest
// date, end at its latest date capped by the extractor's completeness
// window. Gap detection then selects only the dates the satellite table
// lacks, so re-running is cheap and idempotent.
func (e *Engine) Incremental(ctx context.Context, name string, opts BackfillOptions) (*BackfillResult, error) {
	ex, err := e.reg.Get(name)
	if err != nil {
		return nil, err
	}
	desc := ex.Descriptor()
	log := e.log.With(zap.String("extractor", name))

	start, end, err := e.horizon(ctx, ex, opts)
	if err != nil {
		return nil, err
	}

	res := &BackfillResult{
		Extractor: name,
		Start:     start,
		End:       end,
		DryRun:    opts.DryRun,
		Success:   true,
	}
	if start == "" || end == "" || end < start {
		// Empty reference table, or everything still inside the
		// completeness window. Nothing to do.
		log.Info("no backfillable range", zap.String("start", start), zap.String("end", end))
		return res, nil
	}

	missing, err := ex.MissingDates(ctx, e.st, start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "backfill %s: find gaps", name)
	}
	res.Missing = missing
	if len(missing) == 0 {
		log.Info("table aligned, no gaps", zap.String("start", start), zap.String("end", end))
		return res, nil
	}

	log.Info("backfill plan",
		zap.String("start", start), zap.String("end", end),
		zap.Int("missing", len(missing)), zap.Bool("dry_run", opts.DryRun))

	if opts.DryRun {
		for _, date := range missing {
			res.Details = append(res.Details, DateResult{Date: date, Status: DateSkipped, Reason: "dry run"})
		}
		return res, nil
	}

	run, err := e.st.StartRun(ctx, name)
	if err != nil {
		return nil, err
	}
	res.RunID = run.ID

	for _, date := range missing {
		if err := ctx.Err(); err != nil {
			e.finishRun(ctx, res, fmt.Sprintf("interrupted: %v", err))
			return res, err
		}
		d := e.processDate(ctx, ex, date, opts, log)
		res.Details = append(res.Details, d)
		switch d.Status {
		case DateProcessed:
			res.Processed++
		case DateSkipped:
			res.Skipped++
		case DateFailed:
			res.Failed++
		}
	}
	res.Success = res.Failed == 0

	e.finishRun(ctx, res, summarize(res, desc))
	log.Info("backfill finished",
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

// processDate validates, extracts, and saves one date. An empty
// extraction result still counts as processed: the upstream reporting
// zero activity for a date is data, and saving it closes the gap.
func (e *Engine) processDate(ctx context.Context, ex Extractor, date string, opts BackfillOptions, log *zap.Logger) DateResult {
	if !opts.SkipValidation {
		if err := ex.ValidateDate(date, e.now()); err != nil {
			log.Debug("date skipped", zap.String("date", date), zap.Error(err))
			return DateResult{Date: date, Status: DateSkipped, Reason: err.Error()}
		}
	}

	rows, err := ex.Extract(ctx, date)
	if err != nil {
		log.Warn("extraction failed", zap.String("date", date), zap.Error(err))
		return DateResult{Date: date, Status: DateFailed, Reason: err.Error()}
	}
	if err := ex.Save(ctx, e.st, date, rows); err != nil {
		log.Warn("save failed", zap.String("date", date), zap.Error(err))
		return DateResult{Date: date, Status: DateFailed, Reason: err.Error()}
	}
	return DateResult{Date: date, Status: DateProcessed, Records: len(rows)}
}

// horizon resolves the effective [start, end] range. An explicit
// inverted range is the caller's mistake and errors out; a computed
// empty range just means nothing is extractable yet.
func (e *Engine) horizon(ctx context.Context, ex Extractor, opts BackfillOptions) (string, string, error) {
	start, end := opts.Start, opts.End
	if start != "" {
		if _, err := model.ParseDay(start); err != nil {
			return "", "", err
		}
	}
	if end != "" {
		if _, err := model.ParseDay(end); err != nil {
			return "", "", err
		}
	}
	if start != "" && end != "" {
		if end < start {
			return "", "", eris.Errorf("invalid range: start %s after end %s", start, end)
		}
		return start, end, nil
	}

	stats, err := e.st.Statistics(ctx)
	if err != nil {
		return "", "", err
	}
	if stats.Count == 0 {
		return start, end, nil
	}
	if start == "" {
		start = stats.MinDate
	}
	if end == "" {
		end = stats.MaxDate
		if latest := baseOf(ex).LatestExtractable(e.now()); latest < end {
			end = latest
		}
	}
	return start, end, nil
}

func (e *Engine) finishRun(ctx context.Context, res *BackfillResult, detail string) {
	if res.RunID == "" {
		return
	}
	// The run record must be closed even when the work was cancelled.
	ctx = context.WithoutCancel(ctx)
	var err error
	if res.Failed > 0 && res.Processed == 0 {
		err = e.st.FailRun(ctx, res.RunID, res.Processed, res.Failed, detail)
	} else {
		err = e.st.CompleteRun(ctx, res.RunID, res.Processed, res.Failed, detail)
	}
	if err != nil {
		e.log.Warn("run log update failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

func summarize(res *BackfillResult, desc Descriptor) string {
	return fmt.Sprintf("%s %s..%s: %d processed, %d skipped, %d failed",
		desc.Table, res.Start, res.End, res.Processed, res.Skipped, res.Failed)
}

// baseOf recovers the embedded Base for window math. All registry
// extractors embed it.
func baseOf(ex Extractor) Base {
	return Base{Desc: ex.Descriptor()}
}

// All backfills every registered extractor, at most parallel at a time.
// Extractor-level failures are collected into the results rather than
// aborting the group; the returned error covers infrastructure failures
// only.
func (e *Engine) All(ctx context.Context, opts BackfillOptions, parallel int) (map[string]*BackfillResult, error) {
	if parallel <= 0 {
		parallel = 1
	}

	var mu sync.Mutex
	results := make(map[string]*BackfillResult)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, name := range e.reg.Names() {
		g.Go(func() error {
			res, err := e.Incremental(gctx, name, opts)
			if err != nil {
				return eris.Wrapf(err, "backfill %s", name)
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

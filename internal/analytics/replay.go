package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/voltadata/metricsync/internal/resilience"
)

// Replay serves reports from per-date JSON fixture files. It is used for
// local development and replaying captured upstream responses; production
// deployments plug in a real transport behind the Client interface.
//
// Fixture layout: <dir>/<YYYY-MM-DD>.json containing
//
//	{"sessions|sessionChannel|commodity": {"total": 120, "rows": [...]}, ...}
//
// keyed by "metric|dimension|segment".
type Replay struct {
	dir string
}

// NewReplay creates a fixture-backed client rooted at dir.
func NewReplay(dir string) (*Replay, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "analytics: fixture dir %s", dir)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("analytics: fixture path %s is not a directory", dir)
	}
	return &Replay{dir: dir}, nil
}

// Key builds the fixture lookup key for a request.
func Key(req ReportRequest) string {
	return fmt.Sprintf("%s|%s|%s", req.Metric, req.Dimension, req.Segment)
}

func (r *Replay) RunReport(_ context.Context, req ReportRequest) (*Report, error) {
	path := filepath.Join(r.dir, req.Date+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A date with no fixture behaves like a permanent not-found.
			return nil, resilience.NewPermanentError(
				eris.Errorf("analytics: no fixture for date %s", req.Date), 404)
		}
		return nil, eris.Wrapf(err, "analytics: read fixture %s", path)
	}

	var reports map[string]*Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, eris.Wrapf(err, "analytics: decode fixture %s", path)
	}

	rep, ok := reports[Key(req)]
	if !ok {
		// Missing slice within an existing date: valid empty data.
		return &Report{}, nil
	}
	return rep, nil
}

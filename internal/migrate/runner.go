// Package migrate applies ordered, checksummed SQL schema migrations.
//
// Migration files live in an fs.FS (usually embedded), one schema change
// per file, named so that lexicographic order is application order
// (e.g. 0001_init.sql). Each file is applied in a single transaction and
// recorded in the _migrations tracking table only on success.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Target is the engine-specific side of the runner: each storage backend
// implements transactional apply and tracking-table access in its own SQL
// dialect.
type Target interface {
	// EnsureTable creates the _migrations tracking table if needed.
	EnsureTable(ctx context.Context) error

	// Applied returns version -> checksum for all recorded migrations.
	Applied(ctx context.Context) (map[string]string, error)

	// Apply runs sqlText and records (version, checksum) in one
	// transaction; on any failure nothing is persisted.
	Apply(ctx context.Context, version, checksum, sqlText string) error
}

// Migration is one pending schema change.
type Migration struct {
	Version  string
	Checksum string
	SQL      string
}

// Status reports applied and pending migration counts.
type Status struct {
	AppliedCount int      `json:"applied_count"`
	PendingCount int      `json:"pending_count"`
	Applied      []string `json:"applied"`
	Pending      []string `json:"pending"`
}

// Runner drives migrations from an fs.FS against a Target.
type Runner struct {
	fsys   fs.FS
	dir    string
	target Target
	log    *zap.Logger
}

// NewRunner creates a runner and ensures the tracking table exists.
func NewRunner(ctx context.Context, fsys fs.FS, dir string, target Target) (*Runner, error) {
	r := &Runner{
		fsys:   fsys,
		dir:    dir,
		target: target,
		log:    zap.L().With(zap.String("component", "migrate")),
	}
	if err := target.EnsureTable(ctx); err != nil {
		return nil, eris.Wrap(err, "migrate: ensure tracking table")
	}
	return r, nil
}

// Checksum returns the hex SHA-256 of a migration's content.
func Checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}

// Pending returns not-yet-applied migrations in filename order. Before
// returning it re-verifies the checksum of every already-applied file:
// an edited historical migration fails fast rather than being silently
// accepted, since the recorded schema no longer matches the source tree.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := r.target.Applied(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "migrate: read applied migrations")
	}

	all, err := r.readAll()
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range all {
		recorded, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if recorded != "" && recorded != m.Checksum {
			return nil, eris.Errorf(
				"migrate: checksum mismatch for applied migration %s (recorded %s, file %s)",
				m.Version, recorded, m.Checksum)
		}
	}
	return pending, nil
}

// Apply runs a single migration transactionally and records it on success.
// Empty migration files are rejected.
func (r *Runner) Apply(ctx context.Context, m Migration) error {
	if strings.TrimSpace(m.SQL) == "" {
		return eris.Errorf("migrate: migration %s is empty", m.Version)
	}

	r.log.Info("applying migration", zap.String("version", m.Version))
	if err := r.target.Apply(ctx, m.Version, m.Checksum, m.SQL); err != nil {
		return eris.Wrapf(err, "migrate: apply %s", m.Version)
	}
	r.log.Info("migration applied", zap.String("version", m.Version))
	return nil
}

// RunAllPending applies pending migrations strictly in order, stopping at
// the first failure: later files may assume earlier ones succeeded, so
// skip-ahead is not allowed. It returns how many were applied.
func (r *Runner) RunAllPending(ctx context.Context) (int, error) {
	pending, err := r.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		r.log.Debug("no pending migrations")
		return 0, nil
	}

	applied := 0
	for _, m := range pending {
		if err := r.Apply(ctx, m); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Status reports applied/pending versions.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	appliedMap, err := r.target.Applied(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "migrate: read applied migrations")
	}
	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		AppliedCount: len(appliedMap),
		PendingCount: len(pending),
	}
	for v := range appliedMap {
		st.Applied = append(st.Applied, v)
	}
	sort.Strings(st.Applied)
	for _, m := range pending {
		st.Pending = append(st.Pending, m.Version)
	}
	return st, nil
}

func (r *Runner) readAll() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fsys, r.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "migrate: read dir %s", r.dir)
	}

	var all []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		data, err := fs.ReadFile(r.fsys, r.dir+"/"+name)
		if err != nil {
			return nil, eris.Wrapf(err, "migrate: read %s", name)
		}
		all = append(all, Migration{
			Version:  name,
			Checksum: Checksum(string(data)),
			SQL:      string(data),
		})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	return all, nil
}

package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	applied map[string]string
	order   []string
	failOn  string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{applied: map[string]string{}}
}

func (f *fakeTarget) EnsureTable(ctx context.Context) error { return nil }

func (f *fakeTarget) Applied(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.applied))
	for k, v := range f.applied {
		out[k] = v
	}
	return out, nil
}

func (f *fakeTarget) Apply(ctx context.Context, version, checksum, sqlText string) error {
	if version == f.failOn {
		return assert.AnError
	}
	f.applied[version] = checksum
	f.order = append(f.order, version)
	return nil
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/0001_init.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"migrations/0002_second.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"migrations/0003_third.sql":  {Data: []byte("CREATE TABLE c (id INTEGER);")},
		"migrations/README.md":       {Data: []byte("not a migration")},
	}
}

func TestRunner_RunAllPending(t *testing.T) {
	ctx := context.Background()
	target := newFakeTarget()
	r, err := NewRunner(ctx, testFS(), "migrations", target)
	require.NoError(t, err)

	n, err := r.RunAllPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"0001_init.sql", "0002_second.sql", "0003_third.sql"}, target.order)

	// Re-running applies nothing.
	n, err = r.RunAllPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	target := newFakeTarget()
	target.failOn = "0002_second.sql"
	r, err := NewRunner(ctx, testFS(), "migrations", target)
	require.NoError(t, err)

	n, err := r.RunAllPending(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"0001_init.sql"}, target.order)

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "0002_second.sql", pending[0].Version)
}

func TestRunner_RejectsEmptyMigration(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{
		"migrations/0001_empty.sql": {Data: []byte("  \n\t")},
	}
	target := newFakeTarget()
	r, err := NewRunner(ctx, fsys, "migrations", target)
	require.NoError(t, err)

	_, err = r.RunAllPending(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
	assert.Empty(t, target.applied)
}

func TestRunner_ChecksumMismatchFailsFast(t *testing.T) {
	ctx := context.Background()
	fsys := testFS()
	target := newFakeTarget()
	r, err := NewRunner(ctx, fsys, "migrations", target)
	require.NoError(t, err)

	_, err = r.RunAllPending(ctx)
	require.NoError(t, err)

	// Edit an already-applied file.
	fsys["migrations/0001_init.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id INTEGER, extra TEXT);")}

	_, err = r.Pending(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestRunner_Status(t *testing.T) {
	ctx := context.Background()
	target := newFakeTarget()
	r, err := NewRunner(ctx, testFS(), "migrations", target)
	require.NoError(t, err)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.AppliedCount)
	assert.Equal(t, 3, st.PendingCount)

	_, err = r.RunAllPending(ctx)
	require.NoError(t, err)

	st, err = r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.AppliedCount)
	assert.Zero(t, st.PendingCount)
	assert.Equal(t, []string{"0001_init.sql", "0002_second.sql", "0003_third.sql"}, st.Applied)
}
